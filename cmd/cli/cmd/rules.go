package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"email-automation/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Aliases: []string{"rule"},
	Short:   "Manage automation rules",
	Long:    `Create, inspect, and modify the rules the automation engine applies to your mailbox.`,
}

var rulesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all rules",
	Long:    `List all rules known to the server, enabled or not.`,
	RunE:    runRulesList,
}

var rulesGetCmd = &cobra.Command{
	Use:   "get <rule-id|name>",
	Short: "Show a single rule",
	Long:  `Show a rule's conditions and actions. The argument may be a rule ID or a rule name.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesGet,
}

var rulesAddCmd = &cobra.Command{
	Use:     "add",
	Aliases: []string{"create"},
	Short:   "Add a new rule",
	Long: `Add a new rule built from --condition and --action flags, or from a raw
JSON document passed via --json (use "-" to read it from stdin).

Conditions use the form field:operator:value, for example:
  --condition from:contains:newsletter@
  --condition date_age:older_than:30d

Actions use the form type or type:label, for example:
  --action trash
  --action add_label:Receipts`,
	RunE: runRulesAdd,
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <rule-id|name>",
	Short: "Update an existing rule",
	Long: `Update a rule in place. Flags replace the corresponding part of the rule:
--condition flags replace all conditions, --action flags replace all actions.
Parts without a flag keep their stored value. --json replaces the whole rule.`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesUpdate,
}

var rulesDeleteCmd = &cobra.Command{
	Use:     "delete <rule-id|name>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete a rule",
	Long:    `Delete a rule from the server.`,
	Args:    cobra.ExactArgs(1),
	RunE:    runRulesDelete,
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <rule-id|name>",
	Short: "Enable a rule",
	Long:  `Enable a rule so automation runs apply it again.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesEnable,
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <rule-id|name>",
	Short: "Disable a rule",
	Long:  `Disable a rule without deleting it. Disabled rules are skipped by automation runs.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesDisable,
}

var (
	rulesListFields      string
	rulesListInteractive bool

	addRuleName       string
	addRuleConditions []string
	addRuleActions    []string
	addRuleAny        bool
	addRuleDisabled   bool
	addRuleJSON       string

	updateRuleName       string
	updateRuleConditions []string
	updateRuleActions    []string
	updateRuleAny        bool
	updateRuleAll        bool
	updateRuleJSON       string
)

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesGetCmd)
	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesUpdateCmd)
	rulesCmd.AddCommand(rulesDeleteCmd)
	rulesCmd.AddCommand(rulesEnableCmd)
	rulesCmd.AddCommand(rulesDisableCmd)

	rulesListCmd.Flags().StringVar(&rulesListFields, "fields", "", "Comma-separated fields to display (id,name,enabled,conjunction,conditions,actions)")
	rulesListCmd.Flags().BoolVarP(&rulesListInteractive, "interactive", "i", false, "Interactive table mode")

	rulesAddCmd.Flags().StringVarP(&addRuleName, "name", "n", "", "Rule name (required unless --json is given)")
	rulesAddCmd.Flags().StringArrayVarP(&addRuleConditions, "condition", "c", nil, "Condition as field:operator:value (repeatable)")
	rulesAddCmd.Flags().StringArrayVarP(&addRuleActions, "action", "a", nil, "Action as type or type:label (repeatable)")
	rulesAddCmd.Flags().BoolVar(&addRuleAny, "any", false, "Match when any condition holds instead of all")
	rulesAddCmd.Flags().BoolVar(&addRuleDisabled, "disabled", false, "Create the rule disabled")
	rulesAddCmd.Flags().StringVarP(&addRuleJSON, "json", "j", "", "Raw rule JSON, or - to read from stdin")

	rulesUpdateCmd.Flags().StringVarP(&updateRuleName, "name", "n", "", "New rule name")
	rulesUpdateCmd.Flags().StringArrayVarP(&updateRuleConditions, "condition", "c", nil, "Replacement condition as field:operator:value (repeatable)")
	rulesUpdateCmd.Flags().StringArrayVarP(&updateRuleActions, "action", "a", nil, "Replacement action as type or type:label (repeatable)")
	rulesUpdateCmd.Flags().BoolVar(&updateRuleAny, "any", false, "Match when any condition holds")
	rulesUpdateCmd.Flags().BoolVar(&updateRuleAll, "all", false, "Match only when all conditions hold")
	rulesUpdateCmd.Flags().StringVarP(&updateRuleJSON, "json", "j", "", "Raw rule JSON replacing the whole rule, or - to read from stdin")
	rulesUpdateCmd.MarkFlagsMutuallyExclusive("any", "all")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	list, err := client.GetRules()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if shouldUseInteractiveMode(config, rulesListInteractive) {
		return runInteractiveTable(list, client, rulesListFields, config)
	}

	return formatter.PrintRules(list)
}

func runRulesGet(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	rule, err := client.GetRule(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintRule(rule)
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	rule, err := buildNewRule()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	created, err := client.CreateRule(rule)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if config.Quiet {
		return formatter.PrintRule(created)
	}

	formatter.PrintSuccess("Rule added successfully")
	return formatter.PrintRule(created)
}

// buildNewRule assembles a rule from the add flags, or decodes --json.
func buildNewRule() (*rules.Rule, error) {
	if addRuleJSON != "" {
		return decodeRuleJSON(addRuleJSON)
	}

	if addRuleName == "" {
		return nil, fmt.Errorf("either --name or --json is required")
	}

	conditions, err := parseConditions(addRuleConditions)
	if err != nil {
		return nil, err
	}
	actions, err := parseActions(addRuleActions)
	if err != nil {
		return nil, err
	}

	conjunction := rules.ConjunctionAnd
	if addRuleAny {
		conjunction = rules.ConjunctionOr
	}

	rule, err := rules.NewRule(addRuleName, conjunction, conditions, actions)
	if err != nil {
		return nil, err
	}
	if addRuleDisabled {
		rule.Enabled = false
	}
	return rule, nil
}

func runRulesUpdate(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	existing, err := client.GetRule(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if updateRuleJSON != "" {
		replacement, err := decodeRuleJSON(updateRuleJSON)
		if err != nil {
			formatter.PrintError(err)
			return err
		}
		replacement.ID = existing.ID
		existing = replacement
	} else {
		if cmd.Flags().Changed("name") {
			existing.Name = updateRuleName
		}
		if len(updateRuleConditions) > 0 {
			conditions, err := parseConditions(updateRuleConditions)
			if err != nil {
				formatter.PrintError(err)
				return err
			}
			existing.Conditions = conditions
		}
		if len(updateRuleActions) > 0 {
			actions, err := parseActions(updateRuleActions)
			if err != nil {
				formatter.PrintError(err)
				return err
			}
			existing.Actions = actions
		}
		if updateRuleAny {
			existing.Conjunction = rules.ConjunctionOr
		}
		if updateRuleAll {
			existing.Conjunction = rules.ConjunctionAnd
		}
	}

	updated, err := client.UpdateRule(existing.ID, existing)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if config.Quiet {
		return formatter.PrintRule(updated)
	}

	formatter.PrintSuccess("Rule updated successfully")
	return formatter.PrintRule(updated)
}

func runRulesDelete(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	if err := client.DeleteRule(args[0]); err != nil {
		formatter.PrintError(err)
		return err
	}

	if !config.Quiet {
		formatter.PrintSuccess("Rule deleted successfully")
	}

	return nil
}

func runRulesEnable(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	rule, err := client.EnableRule(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if config.Quiet {
		return formatter.PrintRule(rule)
	}

	formatter.PrintSuccess(fmt.Sprintf("Rule %q enabled", rule.Name))
	return nil
}

func runRulesDisable(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	rule, err := client.DisableRule(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if config.Quiet {
		return formatter.PrintRule(rule)
	}

	formatter.PrintSuccess(fmt.Sprintf("Rule %q disabled", rule.Name))
	return nil
}

// parseConditions converts repeated --condition flag values into conditions.
func parseConditions(specs []string) ([]rules.Condition, error) {
	conditions := make([]rules.Condition, 0, len(specs))
	for _, spec := range specs {
		cond, err := parseCondition(spec)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

// parseCondition parses a field:operator:value triple. The value keeps any
// further colons, so "subject:contains:re: invoice" works.
func parseCondition(spec string) (rules.Condition, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return rules.Condition{}, fmt.Errorf("invalid condition %q: expected field:operator:value", spec)
	}
	return rules.Condition{
		Field:    strings.TrimSpace(parts[0]),
		Operator: strings.TrimSpace(parts[1]),
		Value:    parts[2],
	}, nil
}

// parseActions converts repeated --action flag values into actions.
func parseActions(specs []string) ([]rules.Action, error) {
	actions := make([]rules.Action, 0, len(specs))
	for _, spec := range specs {
		action, err := parseAction(spec)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// parseAction parses an action type with an optional label, "add_label:Receipts".
func parseAction(spec string) (rules.Action, error) {
	parts := strings.SplitN(spec, ":", 2)
	actionType := strings.TrimSpace(parts[0])
	if actionType == "" {
		return rules.Action{}, fmt.Errorf("invalid action %q: type is empty", spec)
	}
	action := rules.Action{Type: actionType}
	if len(parts) == 2 {
		action.LabelName = parts[1]
	}
	return action, nil
}

// decodeRuleJSON decodes a rule from an inline JSON string, or from stdin
// when raw is "-".
func decodeRuleJSON(raw string) (*rules.Rule, error) {
	data := []byte(raw)
	if raw == "-" {
		var err error
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading rule JSON from stdin: %w", err)
		}
	}

	var rule rules.Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("invalid rule JSON: %w", err)
	}
	return &rule, nil
}
