package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/qrpay/internal/app"
	"github.com/harrylevesque/qrpay/internal/auth"
)

func loginCmd(flags *globalFlags) *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with phone number and PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app.App) error {
				p := newPrompter()
				phone, err := p.valueOr(phone, "Phone number: ")
				if err != nil {
					return err
				}
				pin, err := p.secret("PIN: ")
				if err != nil {
					return err
				}
				if err := a.Auth.Login(cmd.Context(), phone, pin); err != nil {
					if errors.Is(err, auth.ErrLoginFailed) {
						return errors.New("login failed, check your phone number and PIN and try again")
					}
					return err
				}
				user, _ := a.Auth.CurrentUser()
				fmt.Printf("Signed in as %s (%s)\n", user.Name, user.UpiID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Phone number")
	return cmd
}

func registerCmd(flags *globalFlags) *cobra.Command {
	var phone, upi, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app.App) error {
				p := newPrompter()
				var err error
				if phone, err = p.valueOr(phone, "Phone number: "); err != nil {
					return err
				}
				if upi, err = p.valueOr(upi, "UPI ID: "); err != nil {
					return err
				}
				if name, err = p.valueOr(name, "Name: "); err != nil {
					return err
				}
				pin, err := p.secret("Choose a PIN (4-12 digits): ")
				if err != nil {
					return err
				}
				if err := a.Auth.Register(cmd.Context(), phone, upi, name, pin); err != nil {
					return err
				}
				user, _ := a.Auth.CurrentUser()
				fmt.Printf("Registered and signed in as %s (%s)\n", user.Name, user.UpiID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Phone number")
	cmd.Flags().StringVar(&upi, "upi", "", "UPI ID")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	return cmd
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app.App) error {
				a.Auth.Logout()
				fmt.Println("Signed out")
				return nil
			})
		},
	}
}

func whoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app.App) error {
				user, ok := a.Auth.CurrentUser()
				if !ok {
					fmt.Println("Not signed in")
					return nil
				}
				fmt.Printf("Name:     %s\n", user.Name)
				fmt.Printf("UPI ID:   %s\n", user.UpiID)
				fmt.Printf("Balance:  %.2f (at sign-in)\n", user.Balance)
				return nil
			})
		},
	}
}
