package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tigerroll/ddbimport/pkg/batch/component/schema"
	"github.com/tigerroll/ddbimport/pkg/batch/component/step/reader"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

func newValidateSchemaCmd(root *rootOptions) *cobra.Command {
	var (
		schemaPath string
		input      string
		hashKey    string
		rangeKey   string
		encoding   string
	)

	cmd := &cobra.Command{
		Use:   "validate-schema",
		Short: "Check a schema file and, with --file, map the first data row",
		Long: `Validate-schema loads --schema and checks its mapping and keys. With --file
it also maps the first data row of the CSV and prints the resulting item
as DynamoDB JSON; a row that the schema rejects is an error.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if encoding != "" {
				cfg.Importer.Batch.Encoding = encoding
			}

			s, err := schema.Load(schemaPath)
			if err != nil {
				return err
			}
			s = s.OverrideKeys(hashKey, rangeKey)
			if err := s.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Schema %s is valid (hash key %q, range key %q, %d top-level fields).\n",
				schemaPath, s.HashKey, s.RangeKey, len(s.Fields))
			if input == "" {
				return nil
			}

			r := reader.NewCSVReader(input, reader.WithEncoding(cfg.Importer.Batch.Encoding))
			if err := r.Open(cmd.Context()); err != nil {
				return err
			}
			defer r.Close(cmd.Context())

			row, err := r.Read(cmd.Context())
			if errors.Is(err, io.EOF) {
				return exception.NewPreconditionError(moduleName, fmt.Sprintf("%s has no data rows to validate", input), exception.ErrNothingToDo)
			}
			if err != nil {
				return err
			}
			record, err := schema.NewMapper(s, schema.WithListDelimiter(cfg.Importer.Batch.ListDelimiter)).Map(row)
			if err != nil {
				return exception.NewPreconditionError(moduleName, "the first data row is rejected by the schema", err)
			}
			data, err := record.ToJSON()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "First row maps to:\n%s\n", data)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema file to validate (required)")
	cmd.Flags().StringVar(&input, "file", "", "CSV file whose first data row is mapped")
	cmd.Flags().StringVar(&hashKey, "hash-key", "", "hash key attribute; overrides the schema")
	cmd.Flags().StringVar(&rangeKey, "range-key", "", "range key attribute; overrides the schema")
	cmd.Flags().StringVar(&encoding, "encoding", "", "first encoding tried for the CSV")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
