package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/store"
)

var (
	putFlags struct {
		file      string
		overwrite bool
		merge     bool
		replace   bool
	}

	putCmd = &cobra.Command{
		Use:   "put BUCKET NAME",
		Short: "store the metadata record for an object",
		Long: "put reads a canonical JSON record and stores it for BUCKET/NAME.\n" +
			"--merge folds the record into the existing one, --replace swaps it\n" +
			"for the existing one and --overwrite stores it whether or not a\n" +
			"record exists.",
		Args: cobra.ExactArgs(2),
		RunE: putRecord,
	}
	getCmd = &cobra.Command{
		Use:   "get BUCKET NAME",
		Short: "print the metadata record of an object",
		Args:  cobra.ExactArgs(2),
		RunE:  getRecord,
	}
	deleteCmd = &cobra.Command{
		Use:   "delete BUCKET NAME",
		Short: "remove the metadata record of an object",
		Args:  cobra.ExactArgs(2),
		RunE:  deleteRecord,
	}
)

func init() {
	flags := putCmd.Flags()
	flags.StringVarP(&putFlags.file, "file", "f", "-", "record file, - for stdin")
	flags.BoolVar(&putFlags.overwrite, "overwrite", false, "replace an existing record")
	flags.BoolVar(&putFlags.merge, "merge", false, "merge into the existing record")
	flags.BoolVar(&putFlags.replace, "replace", false, "replace the existing record, which must exist")
	putCmd.MarkFlagsMutuallyExclusive("overwrite", "merge", "replace")

	rootCmd.AddCommand(putCmd, getCmd, deleteCmd)
}

func objectRef(args []string) (metadata.ObjectRef, error) {
	ref := metadata.ObjectRef{Bucket: args[0], Name: args[1]}
	return ref, ref.Verify()
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(s store.Store) error) (err error) {
	s, err := openStore(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, s.Close()) }()
	return fn(s)
}

func readRecord(cmd *cobra.Command, file string) (*metadata.Metadata, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return metadata.UnmarshalCanonical(data)
}

func putRecord(cmd *cobra.Command, args []string) error {
	ref, err := objectRef(args)
	if err != nil {
		return err
	}
	m, err := readRecord(cmd, putFlags.file)
	if err != nil {
		return err
	}
	return withStore(cmd, func(s store.Store) error {
		ctx := cmd.Context()
		switch {
		case putFlags.merge:
			return s.Update(ctx, ref, m, true)
		case putFlags.replace:
			if _, err := s.Get(ctx, ref); err != nil {
				return err
			}
			return s.Update(ctx, ref, m, false)
		default:
			return s.Add(ctx, ref, m, putFlags.overwrite)
		}
	})
}

func getRecord(cmd *cobra.Command, args []string) error {
	ref, err := objectRef(args)
	if err != nil {
		return err
	}
	return withStore(cmd, func(s store.Store) error {
		m, err := s.Get(cmd.Context(), ref)
		if err != nil {
			return err
		}
		data, err := metadata.MarshalCanonical(m)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
		return err
	})
}

func deleteRecord(cmd *cobra.Command, args []string) error {
	ref, err := objectRef(args)
	if err != nil {
		return err
	}
	return withStore(cmd, func(s store.Store) error {
		return s.Delete(cmd.Context(), ref)
	})
}
