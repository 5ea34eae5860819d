package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/unitensor/backend"
	_ "github.com/born-ml/unitensor/backend/all"
	"github.com/born-ml/unitensor/internal/envconfig"
	"github.com/born-ml/unitensor/tensor"
)

const version = "v0.1.0-dev"

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "unitensor",
		Short:         "Run array operations on interchangeable backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: envconfig.LogLevel()})))
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				versionHandler(cmd, args)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "List registered backends and their capabilities",
		Args:  cobra.NoArgs,
		RunE:  BackendsHandler,
	}

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show configuration read from the environment",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	evalCmd := &cobra.Command{
		Use:   "eval OPERATION [JSON ARGS...]",
		Short: "Evaluate one operation on JSON arguments",
		Long: `Evaluate one operation on JSON arguments.

Arguments are JSON numbers, nested lists or objects. Objects are turned into
containers and the operation is mapped over their leaves.

Examples:
  unitensor eval add '[1,2,3]' '[4,5,6]'
  unitensor eval sum '[[1,2],[3,4]]' --axes 0 --backend gonum
  unitensor eval flatten '{"a":[1,2,3],"b":[[1,2],[3,4]]}' --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: EvalHandler,
	}
	evalCmd.Flags().String("backend", "", "Backend to run on (default: $UNITENSOR_BACKEND or cpu)")
	evalCmd.Flags().String("dtype", "", "Result dtype for creation and reduction operations")
	evalCmd.Flags().IntSlice("axes", nil, "Axes of reductions, permute_dims and squeeze")
	evalCmd.Flags().Int("axis", 0, "Axis of concat and expand_dims")
	evalCmd.Flags().IntSlice("shape", nil, "Target shape of reshape, broadcast_to and creation operations")
	evalCmd.Flags().Bool("keepdims", false, "Keep reduced axes")
	evalCmd.Flags().Bool("json", false, "Print the result as JSON")

	rootCmd.AddCommand(versionCmd, backendsCmd, envCmd, evalCmd)
	return rootCmd
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "unitensor version %s\n", version)
}

// BackendsHandler prints one row per registered backend.
func BackendsHandler(cmd *cobra.Command, _ []string) error {
	var data [][]string
	for _, name := range backend.Names() {
		b, err := backend.Load(name)
		if err != nil {
			data = append(data, []string{name, "-", "-", "-", "-", err.Error()})
			continue
		}
		caps := b.Capabilities()
		dtypes := make([]string, 0, len(caps.DTypes))
		for _, dt := range caps.SupportedDTypes() {
			dtypes = append(dtypes, dt.String())
		}
		data = append(data, []string{
			name,
			yesNo(caps.InPlace),
			yesNo(caps.NativeOut),
			yesNo(caps.Variables),
			fmt.Sprint(len(caps.Operations)),
			strings.Join(dtypes, ","),
		})
	}
	renderTable(cmd.OutOrStdout(), []string{"NAME", "IN-PLACE", "NATIVE OUT", "VARIABLES", "OPS", "DTYPES"}, data)
	return nil
}

// EnvHandler prints every environment setting and its current value.
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	data := make([][]string, 0, len(keys))
	for _, k := range keys {
		v := vars[k]
		data = append(data, []string{v.Name, fmt.Sprint(v.Value), v.Description})
	}
	renderTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"}, data)
	return nil
}

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EvalHandler runs one operation and prints its result.
func EvalHandler(cmd *cobra.Command, args []string) error {
	op, ok := operations[args[0]]
	if !ok {
		return fmt.Errorf("unknown operation %q, expected one of %s", args[0], strings.Join(operationNames(), ", "))
	}
	operands := make([]any, 0, len(args)-1)
	for _, s := range args[1:] {
		v, err := parseArg(s)
		if err != nil {
			return err
		}
		operands = append(operands, v)
	}
	if len(operands) != op.arity && op.arity >= 0 {
		return fmt.Errorf("%s takes %d arguments, got %d", args[0], op.arity, len(operands))
	}

	p, err := evalParams(cmd)
	if err != nil {
		return err
	}
	slog.Debug("eval", "op", args[0], "args", len(operands), "backend", p.backend)

	res, err := op.run(operands, p)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return printResult(cmd.OutOrStdout(), res, asJSON)
}

func printResult(w io.Writer, res any, asJSON bool) error {
	if asJSON {
		b, err := marshal(res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	if arrays, ok := res.([]*tensor.Array); ok {
		for _, a := range arrays {
			fmt.Fprintln(w, a)
		}
		return nil
	}
	_, err := fmt.Fprintln(w, res)
	return err
}
