package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/ir"
)

var (
	headerColor = color.New(color.Bold, color.FgMagenta)
	nameColor   = color.New(color.FgGreen)
	typeColor   = color.New(color.FgCyan)
	dimColor    = color.New(color.Faint)
	okColor     = color.New(color.FgGreen, color.Bold)
	failColor   = color.New(color.FgRed, color.Bold)
)

func newInspectCmd(a *app) *cobra.Command {
	var core, witTypes bool
	cmd := &cobra.Command{
		Use:   "inspect <module-file>",
		Short: "Print the descriptors of a binding module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ir.Load(args[0])
			if err != nil {
				return err
			}
			a.logger.Debug("module loaded", zap.String("path", args[0]), zap.String("module", m.Name()))
			return inspect(cmd.OutOrStdout(), m, core, witTypes)
		},
	}
	cmd.Flags().BoolVar(&core, "core", false, "show core wasm signatures")
	cmd.Flags().BoolVar(&witTypes, "wit", false, "show resolved WIT types")
	return cmd
}

func inspect(w io.Writer, m *ir.Module, core, witTypes bool) error {
	headerColor.Fprintf(w, "module %s\n", m.Name())
	for _, ns := range m.Namespaces() {
		dimColor.Fprintf(w, "  namespace %s as %s\n", ns.Name, ns.HostName)
	}

	printFn := func(indent string, fn ir.Function) error {
		fmt.Fprintf(w, "%s%s %s\n", indent, dimColor.Sprint(kindLabel(fn)), nameColor.Sprint(signature(m, fn)))
		if core {
			params, results, err := m.CoreSignature(fn)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s  core %s\n", indent, typeColor.Sprint(coreSigStr(params, results)))
		}
		return nil
	}

	if fns := m.Functions(); len(fns) > 0 {
		headerColor.Fprintln(w, "\nfunctions")
		for _, fn := range fns {
			if err := printFn("  ", fn); err != nil {
				return err
			}
		}
	}

	if structs := m.Structs(); len(structs) > 0 {
		headerColor.Fprintln(w, "\nclasses")
		for _, s := range structs {
			fmt.Fprintf(w, "  %s %s", nameColor.Sprint(s.HostName), dimColor.Sprintf("(%s)", s.Kind))
			if witTypes {
				t, err := m.WIT(ir.TypeRef(s.Name))
				if err != nil {
					return err
				}
				fmt.Fprintf(w, " %s", typeColor.Sprint(witTypeStr(t)))
			}
			fmt.Fprintln(w)
			for _, f := range s.Fields {
				fmt.Fprintf(w, "    .%s: %s\n", f.HostName, typeColor.Sprint(f.Type))
			}
			for _, fn := range m.Methods(s.Name) {
				if err := printFn("    ", fn); err != nil {
					return err
				}
			}
		}
	}

	if enums := m.Enums(); len(enums) > 0 {
		headerColor.Fprintln(w, "\nenums")
		for _, e := range enums {
			fmt.Fprintf(w, "  %s\n", nameColor.Sprint(e.HostName))
			for _, v := range e.Variants {
				fmt.Fprintf(w, "    %s = %d\n", v.Name, v.Value)
			}
		}
	}

	if consts := m.Consts(); len(consts) > 0 {
		headerColor.Fprintln(w, "\nconsts")
		for _, c := range consts {
			fmt.Fprintf(w, "  %s: %s = %s\n", nameColor.Sprint(c.HostName), typeColor.Sprint(c.Type), c.Expr)
		}
	}
	return nil
}
