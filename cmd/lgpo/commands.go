package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(getCmd, setCmd, infoCmd, listCmd)

	setCmd.Flags().Bool("cumulative-rights", false, "add to existing user right holders instead of replacing them")
	viper.BindPFlag("cumulative-rights", setCmd.Flags().Lookup("cumulative-rights"))

	getCmd.Flags().Bool("tree", false, "nest Administrative Template policies under their category path")
	listCmd.Flags().Bool("templates", false, "include Administrative Template policies")
}

var getCmd = &cobra.Command{
	Use:   "get [policy...]",
	Short: "Read current policy values",
	Long: "Without arguments, reports every built-in policy and every configured\n" +
		"Administrative Template policy. With arguments, reads only the named\n" +
		"policies. --tree prints the full report as JSON with template policies\n" +
		"nested under their category path.",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(false)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		machine := machineClass()

		if len(args) == 0 {
			if tree, _ := cmd.Flags().GetBool("tree"); tree {
				all, err := engine.GetTree(ctx, machine)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(all, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			all, err := engine.Get(ctx, machine)
			if err != nil {
				return err
			}
			printSorted(all)
			return nil
		}
		for _, name := range args {
			v, err := engine.GetPolicy(ctx, name, machine)
			if err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", name, renderValue(v))
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set name=value [name=value...]",
	Short: "Apply policy values",
	Long: "Applies one or more assignments in a single batch: everything is\n" +
		"validated first, writes to the same store are grouped, and each value\n" +
		"is read back afterwards. Values starting with '{' or '[' are parsed\n" +
		"as JSON, which is how Administrative Template element values are\n" +
		"passed.",
	Example: `  lgpo set LockoutDuration=30 PasswordComplexity=Enabled
  lgpo set "Contoso:DisableTelemetry={\"UploadMinutes\": 60}"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := make(map[string]interface{}, len(args))
		for _, arg := range args {
			name, raw, ok := strings.Cut(arg, "=")
			if !ok {
				return errors.Newf("expected name=value, got %q", arg)
			}
			settings[name] = parseValue(raw)
		}

		engine, err := newEngine(viper.GetBool("cumulative-rights"))
		if err != nil {
			return err
		}
		return engine.Set(cmd.Context(), machineClass(), settings)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <policy>",
	Short: "Describe a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(false)
		if err != nil {
			return err
		}
		info, err := engine.GetPolicyInfo(args[0], machineClass())
		if err != nil {
			return err
		}

		fmt.Printf("Name:      %s\n", info.Name)
		fmt.Printf("Mechanism: %s\n", info.Mechanism)
		if len(info.Path) > 0 {
			fmt.Printf("Path:      %s\n", strings.Join(info.Path, `\`))
		}
		if len(info.Aliases) > 0 {
			fmt.Printf("Aliases:   %s\n", strings.Join(info.Aliases, ", "))
		}
		if len(info.Options) > 0 {
			fmt.Printf("Options:   %s\n", renderValue(info.Options))
		}
		for _, element := range info.Elements {
			fmt.Printf("Element:   %s (%s)", element.ID, element.Kind)
			if element.Label != "" && element.Label != element.ID {
				fmt.Printf("  %q", element.Label)
			}
			fmt.Println()
		}
		if info.Explanation != "" {
			fmt.Printf("\n%s\n", info.Explanation)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configurable policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, _ := cmd.Flags().GetBool("templates")
		engine, err := newEngine(false)
		if err != nil {
			return err
		}
		for _, name := range engine.ListConfigurablePolicies(machineClass(), templates) {
			fmt.Println(name)
		}
		return nil
	},
}

func parseValue(raw string) interface{} {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v interface{}
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return raw
}

func renderValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func printSorted(all map[string]interface{}) {
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s = %s\n", name, renderValue(all[name]))
	}
}
