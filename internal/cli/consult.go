package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/service"
)

type requestFlags struct {
	question string
	preset   string
	lineup   string
	context  []string
	locale   string
	asJSON   bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.question, "question", "q", "", "decision question")
	cmd.Flags().StringVar(&f.preset, "preset", "balanced", "lineup preset id")
	cmd.Flags().StringVar(&f.lineup, "lineup", "", "explicit lineup, e.g. strategist=1.2,risk_officer,financial_analyst=1")
	cmd.Flags().StringArrayVar(&f.context, "context", nil, "context entry key=value (repeatable)")
	cmd.Flags().StringVar(&f.locale, "locale", "", "locale for rules and prompts")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print JSON instead of the rendered view")
	_ = cmd.MarkFlagRequired("question")
}

func (f *requestFlags) request() (service.ConsultRequest, error) {
	req := service.ConsultRequest{
		Question: f.question,
		PresetID: f.preset,
		Locale:   f.locale,
		Origin:   "councilctl",
	}
	if f.lineup != "" {
		lineup, err := parseLineup(f.lineup)
		if err != nil {
			return req, err
		}
		req.Lineup = lineup
		req.PresetID = ""
	}
	if len(f.context) > 0 {
		req.Context = make(map[string]any, len(f.context))
		for _, kv := range f.context {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return req, fmt.Errorf("invalid --context %q, expected key=value", kv)
			}
			req.Context[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return req, nil
}

// parseLineup 解析 role[=weight] 列表，位置按书写顺序
func parseLineup(text string) (*domain.Lineup, error) {
	lineup := &domain.Lineup{}
	for i, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, weightText, hasWeight := strings.Cut(part, "=")
		role, err := domain.ParseRoleKey(name)
		if err != nil {
			return nil, err
		}
		weight := 1.0
		if hasWeight {
			weight, err = strconv.ParseFloat(strings.TrimSpace(weightText), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid weight for %s: %w", role, err)
			}
		}
		lineup.Roles = append(lineup.Roles, domain.LineupRole{RoleKey: role, Weight: weight, Position: i + 1})
	}
	if err := lineup.Validate(); err != nil {
		return nil, err
	}
	return lineup, nil
}

func newConsultCmd(root *rootOptions) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "consult",
		Short: "Run a full council consultation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			app, err := root.wireApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			resp, err := app.Council.Consult(cmd.Context(), req)
			if err != nil {
				return err
			}
			if flags.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderConsultation(resp, defaultStyles()))
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func newWeightsCmd(root *rootOptions) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show which advisors a question emphasises, without calling the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			app, err := root.wireApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			preview, err := app.Council.Preview(cmd.Context(), req)
			if err != nil {
				return err
			}
			if flags.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(preview)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderPreview(preview, defaultStyles()))
			return err
		},
	}
	flags.register(cmd)
	return cmd
}
