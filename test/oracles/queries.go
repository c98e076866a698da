package oracles

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// legalEdges mirrors the agreement transition table. Same-status rows never
// reach history, so self edges are absent.
var legalEdges = [][2]string{
	{"draft", "sent"},
	{"sent", "viewed"},
	{"sent", "signed"},
	{"sent", "cancelled"},
	{"viewed", "signed"},
	{"viewed", "cancelled"},
	{"signed", "completed"},
	{"signed", "cancelled"},
}

func legalEdgeTuples() string {
	parts := make([]string, len(legalEdges))
	for i, e := range legalEdges {
		parts[i] = fmt.Sprintf("('%s','%s')", e[0], e[1])
	}
	return strings.Join(parts, ", ")
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_history_edges_legal",
			SQL: fmt.Sprintf(`SELECT h.id, h.previous_status, h.new_status
                  FROM agreement_status_history h
                  WHERE h.previous_status IS NOT NULL
                    AND (h.previous_status, h.new_status) NOT IN (%s)`, legalEdgeTuples()),
		},
		{
			Name: "O2_no_exit_from_terminal",
			SQL: `SELECT id, previous_status, new_status FROM agreement_status_history
                  WHERE previous_status IN ('completed','cancelled')`,
		},
		{
			Name: "O3_timestamp_chain",
			SQL: `SELECT id, status FROM agreements
                  WHERE (completed_date IS NOT NULL AND signed_date IS NULL)
                     OR (signed_date IS NOT NULL AND sent_date IS NULL)`,
		},
		{
			Name: "O4_history_has_creation",
			SQL: `SELECT a.id FROM agreements a
                  WHERE NOT EXISTS (
                      SELECT 1 FROM agreement_status_history h
                      WHERE h.agreement_id = a.id AND h.previous_status IS NULL)`,
		},
		{
			Name: "O5_tenant_only_for_completed",
			SQL: `SELECT t.id, a.status FROM tenants t
                  JOIN agreements a ON a.id = t.agreement_id
                  WHERE a.status <> 'completed'`,
		},
		{
			Name: "O6_tenant_unique_per_agreement",
			SQL: `SELECT agreement_id, COUNT(*) FROM tenants
                  GROUP BY agreement_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_one_reminder_per_day",
			SQL: `SELECT agreement_id, date_trunc('day', sent_at), COUNT(*)
                  FROM reminder_log
                  GROUP BY agreement_id, date_trunc('day', sent_at)
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O8_envelope_unique",
			SQL: `SELECT envelope_id, COUNT(*) FROM agreements
                  WHERE envelope_id IS NOT NULL
                  GROUP BY envelope_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O9_no_reminders_for_terminal",
			SQL: `SELECT a.id, a.status, a.reminders_cancelled FROM agreements a
                  WHERE a.status IN ('completed','cancelled')
                    AND EXISTS (
                        SELECT 1 FROM reminder_log r
                        WHERE r.agreement_id = a.id
                          AND r.sent_at > a.updated_at + interval '1 minute')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
