package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"devsess.io/cli/cmd/devsess/cli/jsonutil"
	"devsess.io/cli/cmd/devsess/cli/repouri"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Repository URI tools",
		Long:  "Parse, validate, and convert repository URIs the way the session registry does",
	}

	cmd.AddCommand(newRepoParseCmd())
	cmd.AddCommand(newRepoConvertCmd())

	return cmd
}

func newRepoParseCmd() *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "parse <uri>",
		Short: "Parse and validate a repository URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			uri := repouri.Parse(args[0])
			v := repouri.Validate(uri)

			if jsonFlag {
				data, err := jsonutil.MarshalIndentWithNewline(uri, "", "  ")
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				if !v.Valid {
					return NewSilentError(v.Err)
				}
				return nil
			}

			fmt.Printf("Type:       %s\n", uri.Type)
			fmt.Printf("Normalized: %s\n", uri.Normalized)
			if uri.Host != "" {
				fmt.Printf("Host:       %s\n", uri.Host)
			}
			if uri.Owner != "" {
				fmt.Printf("Owner:      %s\n", uri.Owner)
				fmt.Printf("Repo:       %s\n", uri.Repo)
			}
			if uri.Path != "" {
				fmt.Printf("Path:       %s\n", uri.Path)
			}
			if !v.Valid {
				return fmt.Errorf("invalid: %w", v.Err)
			}
			fmt.Println("Valid:      yes")
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output the parsed components as JSON")

	return cmd
}

func newRepoConvertCmd() *cobra.Command {
	var toFlag string

	cmd := &cobra.Command{
		Use:   "convert <uri>",
		Short: "Convert a repository URI to another form",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			uri := repouri.Parse(args[0])
			out := repouri.Convert(uri, repouri.Type(toFlag))
			if out == "" {
				return fmt.Errorf("cannot convert %q to %s form", args[0], toFlag)
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&toFlag, "to", string(repouri.TypeHTTPS), "Target form: https, ssh, hosted-shorthand, file, or local-path")

	return cmd
}
