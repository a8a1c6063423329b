package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/qrpay/internal/api"
	"github.com/harrylevesque/qrpay/internal/app"
	"github.com/harrylevesque/qrpay/internal/payment"
	"github.com/harrylevesque/qrpay/internal/scan"
)

func payCmd(flags *globalFlags) *cobra.Command {
	var qr, image, amount string
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Pay a merchant QR code",
		Long: `Pay a merchant QR code. The payload comes from --qr, from a QR image
given with --image, or is read from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if qr != "" && image != "" {
				return errors.New("use only one of --qr and --image")
			}
			return withApp(flags, func(a *app.App) error {
				if !a.Auth.IsAuthenticated() {
					return errors.New("not signed in, run `qrpay login` first")
				}
				p := newPrompter()
				var src scan.Source
				switch {
				case qr != "":
					src = fixedSource(qr)
				case image != "":
					src = scan.ImageSource{Path: image}
				default:
					src = p.scanSource()
				}
				return runPayment(cmd.Context(), a.NewPayment(), p, src, amount)
			})
		},
	}
	cmd.Flags().StringVar(&qr, "qr", "", "QR payload, e.g. upi://pay?pa=shop@bank")
	cmd.Flags().StringVar(&image, "image", "", "PNG or JPEG image containing the QR code")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount to pay")
	return cmd
}

func runPayment(ctx context.Context, s *payment.Session, p *prompter, src scan.Source, amount string) error {
	if err := s.Capture(ctx, src); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	code := s.Snapshot().Code
	if upi, err := scan.ParseUPI(code); err == nil {
		fmt.Fprintf(p.out, "Paying %s (%s)\n", valueOr(upi.PayeeName, upi.Payee), upi.Payee)
		if amount == "" && upi.Amount > 0 {
			amount = strconv.FormatFloat(upi.Amount, 'f', 2, 64)
		}
	}

	for {
		text, err := p.valueOr(amount, "Amount: ")
		if err != nil {
			return err
		}
		init, err := s.Initiate(ctx, text)
		if err == nil {
			fmt.Fprintf(p.out, "Merchant: %s (%s)\nAmount:   %.2f\n", init.Merchant.Name, init.Merchant.UpiID, init.Amount)
			break
		}
		fmt.Fprintln(p.out, "Could not start payment:", describe(err))
		if errors.Is(err, payment.ErrInvalidAmount) {
			amount = ""
			continue
		}
		if !s.Snapshot().Retryable() || !p.confirm("Retry") {
			s.Cancel()
			return err
		}
	}

	for {
		pin, err := p.secret("PIN: ")
		if err != nil {
			s.Cancel()
			return err
		}
		res, err := s.Confirm(ctx, pin)
		if err == nil {
			fmt.Fprintf(p.out, "Payment %s: %s\n", res.Status, res.Message)
			fmt.Fprintf(p.out, "Transaction: %s\n", res.TransactionID)
			if res.ProviderReference != "" {
				fmt.Fprintf(p.out, "Reference:   %s\n", res.ProviderReference)
			}
			return nil
		}
		switch snap := s.Snapshot(); {
		case errors.Is(err, payment.ErrEmptyPIN):
			fmt.Fprintln(p.out, "PIN is required")
		case snap.State == payment.Failed:
			return fmt.Errorf("payment declined: %s", describe(err))
		case snap.State == payment.AwaitingConfirmation:
			fmt.Fprintln(p.out, "Payment outcome unknown:", describe(err))
			fmt.Fprintln(p.out, "Retrying is safe; the payment will not be charged twice.")
			if !p.confirm("Retry") {
				s.Cancel()
				return errors.New("payment cancelled, check your history before paying again")
			}
		default:
			return err
		}
	}
}

func describe(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// fixedSource yields a payload given on the command line.
type fixedSource string

func (f fixedSource) Start(context.Context) (<-chan string, error) {
	out := make(chan string, 1)
	out <- string(f)
	close(out)
	return out, nil
}

func (fixedSource) Stop() {}
