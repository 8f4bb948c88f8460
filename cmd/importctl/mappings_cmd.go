package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

func newMappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect and validate mapping profiles",
	}
	cmd.AddCommand(newMappingsValidateCmd(), newMappingsListCmd(), newMappingsMatchCmd())
	return cmd
}

func newMappingsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check every profile in a YAML file against the registered kinds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles := core.NewMappingProfiles(core.DefaultRegistry)
			before := len(profiles.All())
			if err := profiles.LoadFile(args[0], core.DefaultRegistry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d profiles, %d built in)\n", args[0], len(profiles.All()), before)
			return nil
		},
	}
}

func newMappingsListCmd() *cobra.Command {
	var mappingsFile string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the built-in profiles and any loaded from --mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles := core.NewMappingProfiles(core.DefaultRegistry)
			if mappingsFile != "" {
				if err := profiles.LoadFile(mappingsFile, core.DefaultRegistry); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), profiles.All())
		},
	}
	cmd.Flags().StringVar(&mappingsFile, "mappings", "", "YAML file with extra mapping profiles")
	return cmd
}

func newMappingsMatchCmd() *cobra.Command {
	var (
		mappingsFile string
		sheet        string
	)

	cmd := &cobra.Command{
		Use:   "match FILE",
		Short: "Rank mapping profiles by how well they fit a file's header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles := core.NewMappingProfiles(core.DefaultRegistry)
			if mappingsFile != "" {
				if err := profiles.LoadFile(mappingsFile, core.DefaultRegistry); err != nil {
					return err
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			parser := core.NewParser(core.DefaultRegistry, core.ParseOptions{})
			header, err := parser.ReadHeader(core.Source{FileName: filepath.Base(args[0]), Reader: f}, sheet)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), profiles.Match(header))
		},
	}
	cmd.Flags().StringVar(&mappingsFile, "mappings", "", "YAML file with extra mapping profiles")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet name for XLSX files")
	return cmd
}

type kindOutput struct {
	Key            string   `json:"key"`
	Label          string   `json:"label"`
	Scope          string   `json:"scope"`
	Fields         []string `json:"fields"`
	Required       []string `json:"required"`
	IdentityFields []string `json:"identity_fields"`
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List registered entity kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []kindOutput
			for _, k := range core.DefaultRegistry.All() {
				ko := kindOutput{Key: k.Key, Label: k.Label, Scope: string(k.Scope), IdentityFields: k.IdentityFields}
				for _, f := range k.Fields {
					ko.Fields = append(ko.Fields, f.Name)
					if f.Required {
						ko.Required = append(ko.Required, f.Name)
					}
				}
				out = append(out, ko)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
