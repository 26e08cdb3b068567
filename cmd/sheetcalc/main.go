// Command sheetcalc evaluates, converts, and compares sheet files.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/vogtb/sheetdoc/packages/sheet"
)

var (
	errColor     = color.New(color.FgRed)
	formulaColor = color.New(color.Faint)
	addColor     = color.New(color.FgGreen)
	delColor     = color.New(color.FgRed)
)

func main() {
	root := &cobra.Command{
		Use:           "sheetcalc",
		Short:         "Evaluate and convert sheet files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newEvalCmd())
	root.AddCommand(newConvertCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newRefsCmd())

	if err := root.Execute(); err != nil {
		errColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadSheet(path string) (*sheet.SheetData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return sheet.ParseContent(string(raw)), nil
}

func newEvalCmd() *cobra.Command {
	var asDoc bool

	cmd := &cobra.Command{
		Use:   "eval <file>",
		Short: "Evaluate a sheet and print its cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadSheet(args[0])
			if err != nil {
				return err
			}

			if asDoc {
				fmt.Print(sheet.Serialize(data))
				return nil
			}

			ev := sheet.Evaluate(data, nil)
			for _, addr := range sortedKeys(ev.Sheet.Cells) {
				cell := ev.Cell(addr)
				if cell.Error != nil {
					fmt.Printf("%s = %s ", addr, errColor.Sprint(cell.Display()))
					errColor.Printf("(%s)", cell.Error.Message)
				} else {
					fmt.Printf("%s = %s", addr, cell.Display())
				}
				if cell.Formula != "" {
					formulaColor.Printf("  %s", cell.Formula)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asDoc, "doc", false, "print the evaluated sheet in document form")
	return cmd
}

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert JSON, YAML, or document input to document form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadSheet(args[0])
			if err != nil {
				return err
			}
			fmt.Print(sheet.Serialize(data))
			return nil
		},
	}
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <file> <file>",
		Short: "Compare two sheets by their evaluated document form",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, err := loadSheet(args[0])
			if err != nil {
				return err
			}
			right, err := loadSheet(args[1])
			if err != nil {
				return err
			}

			leftDoc := sheet.Serialize(left)
			rightDoc := sheet.Serialize(right)
			if leftDoc == rightDoc {
				fmt.Println("sheets are identical")
				return nil
			}

			dmp := diffmatchpatch.New()
			diffs := dmp.DiffMain(leftDoc, rightDoc, true)
			diffs = dmp.DiffCleanupSemantic(diffs)
			for _, d := range diffs {
				switch d.Type {
				case diffmatchpatch.DiffInsert:
					addColor.Print(d.Text)
				case diffmatchpatch.DiffDelete:
					delColor.Print(d.Text)
				default:
					fmt.Print(d.Text)
				}
			}
			return nil
		},
	}
}

func newRefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refs <file>",
		Short: "List external page references used by a sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadSheet(args[0])
			if err != nil {
				return err
			}
			for _, ref := range sheet.CollectExternalReferences(data) {
				if ref.Identifier != "" {
					fmt.Printf("%s\tlabel=%s id=%s\n", ref.Raw, ref.Label, ref.Identifier)
				} else {
					fmt.Printf("%s\tlabel=%s\n", ref.Raw, ref.Label)
				}
			}
			return nil
		},
	}
}

func sortedKeys(cells map[string]string) []string {
	keys := make([]string, 0, len(cells))
	for addr := range cells {
		keys = append(keys, addr)
	}
	// row-major, matching evaluation order
	sort.Slice(keys, func(i, j int) bool { return addressLess(keys[i], keys[j]) })
	return keys
}

func addressLess(a, b string) bool {
	aRow, aCol, errA := sheet.DecodeAddress(a)
	bRow, bCol, errB := sheet.DecodeAddress(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if aRow != bRow {
		return aRow < bRow
	}
	return aCol < bCol
}
