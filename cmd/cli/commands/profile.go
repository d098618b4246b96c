package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jakechorley/volunteer-portal/pkg/core/access"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
)

// UpdateProfileCmd creates the updateProfile command
func UpdateProfileCmd(app *AppContext) *cobra.Command {
	var upd model.ProfileUpdate
	var avatarPath string

	cmd := &cobra.Command{
		Use:   "updateProfile",
		Short: "Update profile fields and optionally upload an avatar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.UpdateProfile); err != nil {
				return err
			}

			var avatar *model.Avatar
			if avatarPath != "" {
				data, err := os.ReadFile(avatarPath)
				if err != nil {
					return fmt.Errorf("failed to read avatar: %w", err)
				}
				avatar = &model.Avatar{FileName: filepath.Base(avatarPath), Data: data}
			}

			profile, err := services.UpdateProfile(app.Ctx, app.API, app.Session, app.Logger, upd, avatar)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Profile updated for %s", profile.FullName())
			return nil
		},
	}

	cmd.Flags().StringVar(&upd.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&upd.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&upd.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&upd.Address, "address", "", "Address")
	cmd.Flags().StringVar(&upd.Skills, "skills", "", "Skills")
	cmd.Flags().StringVar(&avatarPath, "avatar", "", "Path to an avatar image")

	return cmd
}

// DownloadAvatarCmd creates the downloadAvatar command
func DownloadAvatarCmd(app *AppContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "downloadAvatar",
		Short: "Save the profile avatar, or show initials when there is none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Require(access.UpdateProfile); err != nil {
				return err
			}
			app.Session.Wait()
			snap := app.Session.Snapshot()
			if snap.User == nil {
				return fmt.Errorf("profile is not loaded")
			}

			out := cmd.OutOrStdout()
			view := services.LoadAvatar(app.Ctx, app.API, app.Logger, *snap.User)
			if view.Data == nil {
				fmt.Fprintf(out, "No avatar, showing initials: %s\n", view.Initials)
				return nil
			}
			if err := os.WriteFile(output, view.Data, 0644); err != nil {
				return fmt.Errorf("failed to write avatar: %w", err)
			}
			success(out, "Avatar saved to %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "avatar.img", "File to write")
	return cmd
}
