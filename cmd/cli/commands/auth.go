package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/roles"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

// RegisterCmd creates the register command
func RegisterCmd(app *AppContext) *cobra.Command {
	var req model.RegisterRequest
	var role string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account; a verification email is sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if req.Password == "" {
				password, err := app.ReadLine(out, "Password: ")
				if err != nil {
					return err
				}
				req.Password = password
			}
			req.Role = roleArg(role, app.Logger)

			if err := app.Session.Register(app.Ctx, req); err != nil {
				return err
			}

			success(out, "Account created for %s", req.Email)
			fmt.Fprintln(out, "Check your email, then run: volunteer verifyAccount <token>")
			return nil
		},
	}

	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&req.Address, "address", "", "Address")
	cmd.Flags().StringVar(&req.Skills, "skills", "", "Skills")
	cmd.Flags().StringVar(&role, "role", string(model.RoleVolunteer), "VOLUNTARIO or COORDINADOR")

	return cmd
}

// VerifyAccountCmd creates the verifyAccount command
func VerifyAccountCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verifyAccount <token>",
		Short: "Confirm a registration with the emailed token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := services.VerifyAccount(app.Ctx, app.API, app.Logger, args[0])
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "%s", msg)
			return nil
		},
	}
}

// LoginCmd creates the login command
func LoginCmd(app *AppContext) *cobra.Command {
	var creds model.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if creds.Password == "" {
				password, err := app.ReadLine(out, "Password: ")
				if err != nil {
					return err
				}
				creds.Password = password
			}
			creds.Email = strings.TrimSpace(creds.Email)

			if _, err := app.Session.Login(app.Ctx, creds); err != nil {
				return err
			}
			app.Session.Wait()

			snap := app.Session.Snapshot()
			success(out, "Logged in as %s", creds.Email)
			if snap.User == nil {
				fmt.Fprintln(out, "Profile could not be loaded yet; run: volunteer whoami")
				return nil
			}
			printRoles(out, snap.Roles, snap.ActiveRole)
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Password (prompted when omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

// LogoutCmd creates the logout command
func LogoutCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session in every terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Session.Logout(app.Ctx)
			success(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

// WhoamiCmd creates the whoami command
func WhoamiCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user, granted roles and active role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			app.Session.Wait()
			snap := app.Session.Snapshot()
			if !snap.Authenticated() {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}
			if snap.User == nil {
				hintColor.Fprintln(out, "Logged in, but the profile could not be loaded")
				return nil
			}

			fmt.Fprintf(out, "\n%s <%s>\n", snap.User.FullName(), snap.User.Email)
			printRoles(out, snap.Roles, snap.ActiveRole)
			if pending, ok := snap.PendingRole(); ok {
				hintColor.Fprintf(out, "Role %s is selected but not granted; run: volunteer requestRole\n", pending)
			}
			return nil
		},
	}
}

// SetActiveRoleCmd creates the setActiveRole command
func SetActiveRoleCmd(app *AppContext) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "setActiveRole",
		Short: "Choose the role to act as (empty clears it)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Session.Wait()
			if err := app.Session.SetActiveRole(app.Ctx, model.Role(role)); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			snap := app.Session.Snapshot()
			if snap.ActiveRole == "" {
				success(out, "Active role cleared")
				return nil
			}
			success(out, "Acting as %s", snap.ActiveRole)
			if pending, ok := snap.PendingRole(); ok {
				hintColor.Fprintf(out, "%s is not granted yet; run: volunteer requestRole\n", pending)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "VOLUNTARIO, COORDINADOR or ADMIN")
	return cmd
}

// RequestRoleCmd creates the requestRole command
func RequestRoleCmd(app *AppContext) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "requestRole",
		Short: "Ask the backend to grant a role (default: the selected role)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.RequestRole); err != nil {
				return err
			}

			var want model.Role
			if role != "" {
				r, ok := roles.Normalize(role)
				if !ok {
					return apperr.Validation("Unknown role", apperr.FieldError{
						Field:   "role",
						Message: "role must be one of VOLUNTARIO, COORDINADOR, ADMIN",
					})
				}
				want = r
			}

			grant, err := services.RequestRole(app.Ctx, app.API, app.Session, app.Logger, want)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			success(out, "Role %s granted", grant.Role)
			snap := app.Session.Snapshot()
			printRoles(out, snap.Roles, snap.ActiveRole)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role to request: VOLUNTARIO, COORDINADOR or ADMIN")
	return cmd
}

func printRoles(out io.Writer, granted []model.Role, active model.Role) {
	names := make([]string, len(granted))
	for i, r := range granted {
		names[i] = string(r)
	}
	if len(names) == 0 {
		names = []string{"none"}
	}
	fmt.Fprintf(out, "Roles:       %s\n", strings.Join(names, ", "))
	if active == "" {
		fmt.Fprintln(out, "Active role: none")
		return
	}
	fmt.Fprintf(out, "Active role: %s\n", active)
}

// roleArg normalizes a role typed by the user, keeping unknown input as is
// so validation can report it
func roleArg(s string, logger *zap.Logger) model.Role {
	if r, ok := roles.Normalize(s); ok {
		return r
	}
	logger.Debug("Unrecognized role input", zap.String("role", s))
	return model.Role(s)
}
