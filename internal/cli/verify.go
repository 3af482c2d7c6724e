package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/weibaohui/decision-council/internal/pkg/audit"
)

var errVerificationFailed = errors.New("audit verification failed")

func newVerifyCmd() *cobra.Command {
	var (
		file string
		key  string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify signatures of exported audit entries",
		Long:  "verify reads a single audit entry, a JSON array of entries, or the {\"entries\": [...]} document served by /api/consultations/:id/audit, and checks every signature with the HMAC key.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = auditKeyFromEnv()
			}
			signer, err := audit.NewSigner(key)
			if err != nil {
				return fmt.Errorf("%w (set --key or COUNCIL_AUDIT_KEY)", err)
			}

			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			entries, err := decodeEntries(data)
			if err != nil {
				return err
			}

			s := defaultStyles()
			failed := 0
			for i := range entries {
				e := &entries[i]
				if audit.VerifyEntry(signer, e) {
					fmt.Fprintln(cmd.OutOrStdout(), s.ok.Render("ok  ")+fmt.Sprintf(" %s %s", e.ID, e.Kind))
					continue
				}
				failed++
				fmt.Fprintln(cmd.OutOrStdout(), s.warn.Render("FAIL")+fmt.Sprintf(" %s %s", e.ID, e.Kind))
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d entries", errVerificationFailed, failed, len(entries))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file to verify, - for stdin")
	cmd.Flags().StringVar(&key, "key", "", "HMAC key (default: $COUNCIL_AUDIT_KEY)")
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}

// decodeEntries 接受单条、数组或 {"entries": [...]}
func decodeEntries(data []byte) ([]audit.Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("no audit entries in input")
	}
	if data[0] == '[' {
		var entries []audit.Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode audit entries: %w", err)
		}
		return entries, nil
	}

	var doc struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}
	if doc.Entries != nil {
		return doc.Entries, nil
	}

	var single audit.Entry
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("decode audit entry: %w", err)
	}
	if single.ID == "" {
		return nil, errors.New("no audit entries in input")
	}
	return []audit.Entry{single}, nil
}
