package main

import (
	"fmt"
	"io"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"lendinglibrary/internal/clients"
	"lendinglibrary/internal/domain"
)

var (
	// Loan flags
	serverFlag     string
	memberFlag     int64
	bookFlag       int64
	lendDateFlag   string
	returnDateFlag string
)

// loanCmd groups the loan commands that talk to a running server
var loanCmd = &cobra.Command{
	Use:   "loan",
	Short: "Create, list and delete loans on a running library server",
	Long: `Talk to a running library server (LIBRARY_SERVER or --server).

Subcommands:
  create  - Lend a book to a member
  delete  - Delete a loan
  list    - List loans, optionally for one member`,
}

var loanCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Lend a book to a member",
	Long: `Lend a book to a member. Without --lend-date the server uses today; without
--return-date the loan runs for seven days.

Examples:
  library loan create --member 7 --book 3
  library loan create --member 7 --book 3 --lend-date 2024-03-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := domain.LoanRequest{MemberID: memberFlag, BookID: bookFlag}
		var err error
		if req.LendDate, err = optionalDate(lendDateFlag); err != nil {
			return err
		}
		if req.ReturnDate, err = optionalDate(returnDateFlag); err != nil {
			return err
		}

		loan, err := libraryClient(cmd).CreateLoan(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), loan)
	},
}

var loanDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a loan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid loan id %q", args[0])
		}
		if err := libraryClient(cmd).DeleteLoan(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loan %d deleted\n", id)
		return nil
	},
}

var loanListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loans",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := libraryClient(cmd)

		var loans []domain.Loan
		var err error
		if cmd.Flags().Changed("member") {
			loans, err = c.MemberLoans(cmd.Context(), memberFlag)
		} else {
			loans, err = c.ListLoans(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), loans)
	},
}

func init() {
	rootCmd.AddCommand(loanCmd)
	loanCmd.AddCommand(loanCreateCmd, loanDeleteCmd, loanListCmd)

	loanCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "library server base URL (env LIBRARY_SERVER)")

	loanCreateCmd.Flags().Int64Var(&memberFlag, "member", 0, "member id")
	loanCreateCmd.Flags().Int64Var(&bookFlag, "book", 0, "book id")
	loanCreateCmd.Flags().StringVar(&lendDateFlag, "lend-date", "", "lend date, YYYY-MM-DD")
	loanCreateCmd.Flags().StringVar(&returnDateFlag, "return-date", "", "return date, YYYY-MM-DD")
	_ = loanCreateCmd.MarkFlagRequired("member")
	_ = loanCreateCmd.MarkFlagRequired("book")

	loanListCmd.Flags().Int64Var(&memberFlag, "member", 0, "only loans of this member")
}

func libraryClient(cmd *cobra.Command) *clients.LibraryClient {
	base := cfg.ServerURL
	if cmd.Flags().Changed("server") {
		base = serverFlag
	}
	return clients.NewLibraryClient(base)
}

func optionalDate(s string) (*domain.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func printJSON(w io.Writer, v any) error {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
