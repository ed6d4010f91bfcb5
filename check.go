package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/franklinjsmith-create/SupplyVerify/intake"
	"github.com/franklinjsmith-create/SupplyVerify/model"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
	"github.com/franklinjsmith-create/SupplyVerify/service"
)

type checkOptions struct {
	file     string
	text     string
	id       string
	name     string
	products []string
}

var checkOpts checkOptions

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify a batch once and print the results as JSON",
	Example: `  supplyverify check --file suppliers.csv
  supplyverify check --id 8150000123 --products "ginger,turmeric"
  supplyverify check --text "Sunrise Spice Co. | 8150000123 | ginger"`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkOpts.file, "file", "f", "", "CSV or XLSX file of operations")
	checkCmd.Flags().StringVarP(&checkOpts.text, "text", "t", "", "Operations, one per line: ID, ID | products, or name | ID | products")
	checkCmd.Flags().StringVar(&checkOpts.id, "id", "", "Single operation NOP ID")
	checkCmd.Flags().StringVar(&checkOpts.name, "name", "", "Operation name for --id")
	checkCmd.Flags().StringSliceVar(&checkOpts.products, "products", nil, "Products to check for --id")
	checkCmd.MarkFlagsMutuallyExclusive("file", "text", "id")
	checkCmd.MarkFlagsOneRequired("file", "text", "id")
}

// operations turns the check flags into an intake result.
func (o checkOptions) operations() (intake.Result, error) {
	switch {
	case o.file != "":
		f, err := os.Open(o.file)
		if err != nil {
			return intake.Result{}, err
		}
		defer f.Close()

		switch strings.ToLower(filepath.Ext(o.file)) {
		case ".csv":
			return intake.ParseCSV(f), nil
		case ".xlsx":
			return intake.ParseXLSX(f), nil
		default:
			return intake.Result{}, fmt.Errorf("unsupported file type %q, expected .csv or .xlsx", filepath.Ext(o.file))
		}
	case o.text != "":
		return intake.ParseText(o.text), nil
	default:
		products := make([]string, 0, len(o.products))
		for _, p := range o.products {
			if p = strings.TrimSpace(p); p != "" {
				products = append(products, p)
			}
		}
		op, err := model.NewOperationInput(o.name, o.id, products)
		if err != nil {
			return intake.Result{}, err
		}
		return intake.Result{Operations: []model.OperationInput{op}}, nil
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.SetDefault(logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr))

	res, err := checkOpts.operations()
	if err != nil {
		return err
	}
	for _, msg := range res.Errors {
		slog.Warn("skipped input row", "reason", msg)
	}
	if len(res.Operations) == 0 {
		return errors.New("no operations to verify")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, closeSource := newVerifier(cfg, nil)
	defer closeSource()

	store := service.NewMemoryStore(retention(&cfg.Store))
	runner := service.NewRunner(verifier, store, cfg.Batch.WindowSize, nil)

	sessionID := uuid.NewString()
	if err := store.Create(ctx, sessionID, len(res.Operations), ""); err != nil {
		return err
	}
	runErr := runner.Run(logger.WithSessionID(ctx, sessionID), sessionID, res.Operations)

	sess, err := store.Get(context.WithoutCancel(ctx), sessionID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(sess.Results); err != nil {
		return err
	}
	return runErr
}
