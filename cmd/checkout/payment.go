package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/smart-unicom/checkout"
)

var createFile string

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a payment and print the approval URL",
	Long: `Create a payment from a JSON request and print the approval URL.

The request has the same shape as the POST /checkouts body. When
invoice_number is empty a random one is generated.

Examples:
  checkout create --file order.json
  cat order.json | checkout create`,
	RunE: runCreate,
}

var executeFlags struct {
	paymentID string
	payerID   string
	shipping  string
	tax       string
	subtotal  string
	total     string
	invoice   string
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Execute an approved payment",
	RunE:  runExecute,
}

var statusCmd = &cobra.Command{
	Use:   "status <payment-id>",
	Short: "Show the gateway status of a payment",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "request file, defaults to stdin")

	f := executeCmd.Flags()
	f.StringVar(&executeFlags.paymentID, "payment-id", "", "payment id returned by create")
	f.StringVar(&executeFlags.payerID, "payer-id", "", "payer id from the return URL")
	f.StringVar(&executeFlags.shipping, "shipping", "", "shipping amount")
	f.StringVar(&executeFlags.tax, "tax", "", "tax amount")
	f.StringVar(&executeFlags.subtotal, "subtotal", "", "subtotal amount")
	f.StringVar(&executeFlags.total, "total", "", "total amount")
	f.StringVar(&executeFlags.invoice, "invoice", "", "invoice number, used as idempotency key")
	_ = executeCmd.MarkFlagRequired("payment-id")
	_ = executeCmd.MarkFlagRequired("payer-id")
}

// readCreateRequest 读取创建请求，数字保留为 json.Number
func readCreateRequest(r io.Reader) (checkout.CreateRequest, error) {
	var req checkout.CreateRequest
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.InvoiceNumber == "" {
		req.InvoiceNumber = uuid.NewString()
	}
	return req, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCreate(cmd *cobra.Command, args []string) error {
	in := io.Reader(os.Stdin)
	if createFile != "" {
		file, err := os.Open(createFile)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}
	req, err := readCreateRequest(in)
	if err != nil {
		return err
	}

	rt, err := newApp()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.checkout.Create(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"state":          result.State,
		"payment_id":     result.PaymentID,
		"approval_url":   result.ApprovalURL,
		"invoice_number": req.InvoiceNumber,
	})
}

func runExecute(cmd *cobra.Command, args []string) error {
	rt, err := newApp()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.checkout.Execute(cmd.Context(), checkout.ExecuteRequest{
		PaymentID:     executeFlags.paymentID,
		PayerID:       executeFlags.payerID,
		Shipping:      executeFlags.shipping,
		Tax:           executeFlags.tax,
		Subtotal:      executeFlags.subtotal,
		Total:         executeFlags.total,
		InvoiceNumber: executeFlags.invoice,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := newApp()
	if err != nil {
		return err
	}
	defer rt.close()

	status, err := rt.checkout.Reconcile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), status)
}
