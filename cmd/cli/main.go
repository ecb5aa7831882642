package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"mioym/internal/database"
)

var (
	apiBaseURL    string
	adminEmail    string
	adminPassword string
)

type ResponseError struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type RegisterResponse struct {
	User      database.User `json:"user"`
	EmailSent bool          `json:"email_sent"`
}

// resty keeps cookies between requests, so the session cookie from login is
// reused by the calls that follow on the same client.
var apiServiceBase = func() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL).
		SetHeader("Accept", "application/json").
		SetError(&ResponseError{}).
		OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
			if resp.StatusCode() >= 300 {
				if e, ok := resp.Error().(*ResponseError); ok && e.Message != "" {
					return fmt.Errorf("%s: %s", e.Error, e.Message)
				}
				// resty only decodes error bodies for 4xx and 5xx.
				if resp.StatusCode() == 303 {
					return errors.New("the account still has a temporary password, sign in through the portal to change it")
				}
				return fmt.Errorf("unexpected status %s", resp.Status())
			}

			return nil
		})
}

func adminClient() (*resty.Client, error) {
	if adminEmail == "" || adminPassword == "" {
		return nil, errors.New("admin credentials required, set --admin-email and --admin-password or MIOYM_ADMIN_EMAIL and MIOYM_ADMIN_PASSWORD")
	}

	client := apiServiceBase()
	_, err := client.R().
		SetBody(map[string]string{
			"email":    adminEmail,
			"password": adminPassword,
		}).
		Post("/user/login")
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	return client, nil
}

var rootCmd = &cobra.Command{
	Use:          "mioym",
	Short:        "MIOYM investor portal CLI",
	SilenceUsage: true,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage investor accounts",
}

var userRegisterCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Register an account and mail a temporary password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		firstName, _ := cmd.Flags().GetString("first-name")
		lastName, _ := cmd.Flags().GetString("last-name")
		telephone, _ := cmd.Flags().GetString("telephone")
		role, _ := cmd.Flags().GetString("role")

		client, err := adminClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"email":      args[0],
			"first_name": firstName,
			"last_name":  lastName,
		}
		if telephone != "" {
			body["telephone"] = telephone
		}
		if role != "" {
			body["role"] = role
		}

		resp, err := client.R().
			SetBody(body).
			SetResult(&RegisterResponse{}).
			Post("/user/register")
		if err != nil {
			return err
		}

		result := resp.Result().(*RegisterResponse)

		fmt.Println("User ID    :", result.User.ID)
		fmt.Println("Email      :", result.User.Email)
		fmt.Println("Role       :", result.User.Role)
		fmt.Println("Email sent :", result.EmailSent)
		return nil
	},
}

var userProfileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the admin account used by the CLI",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := adminClient()
		if err != nil {
			return err
		}

		resp, err := client.R().
			SetResult(&database.User{}).
			Get("/user/me")
		if err != nil {
			return err
		}

		user := resp.Result().(*database.User)

		fmt.Println("User ID :", user.ID)
		fmt.Println("Email   :", user.Email)
		fmt.Println("Role    :", user.Role)
		return nil
	},
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Password reset flow",
}

var passwordForgotCmd = &cobra.Command{
	Use:   "forgot <email>",
	Short: "Send a password reset link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiServiceBase().R().
			SetBody(map[string]string{"email": args[0]}).
			SetResult(&MessageResponse{}).
			Post("/user/forgot-password")
		if err != nil {
			return err
		}

		fmt.Println(resp.Result().(*MessageResponse).Message)
		return nil
	},
}

var passwordResetCmd = &cobra.Command{
	Use:   "reset <token> <new-password>",
	Short: "Redeem a reset token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiServiceBase().R().
			SetAuthToken(args[0]).
			SetBody(map[string]string{"password": args[1]}).
			SetResult(&MessageResponse{}).
			Post("/user/reset-password")
		if err != nil {
			return err
		}

		fmt.Println(resp.Result().(*MessageResponse).Message)
		return nil
	},
}

func main() {
	userRegisterCmd.Flags().String("first-name", "", "first name")
	userRegisterCmd.Flags().String("last-name", "", "last name")
	userRegisterCmd.Flags().String("telephone", "", "telephone number")
	userRegisterCmd.Flags().String("role", "", "account role: investor (default), member or admin")
	userRegisterCmd.MarkFlagRequired("first-name")
	userRegisterCmd.MarkFlagRequired("last-name")

	userCmd.AddCommand(userRegisterCmd)
	userCmd.AddCommand(userProfileCmd)
	passwordCmd.AddCommand(passwordForgotCmd)
	passwordCmd.AddCommand(passwordResetCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(passwordCmd)

	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", envOr("MIOYM_API", "http://localhost:3000/api"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&adminEmail, "admin-email", os.Getenv("MIOYM_ADMIN_EMAIL"), "admin email")
	rootCmd.PersistentFlags().StringVar(&adminPassword, "admin-password", os.Getenv("MIOYM_ADMIN_PASSWORD"), "admin password")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
