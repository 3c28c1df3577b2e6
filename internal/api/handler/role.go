package handler

import (
	"fmt"
	"time"

	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/audit"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type roleView struct {
	ID          *string           `json:"id"`
	Name        string            `json:"name"`
	RoleID      string            `json:"roleId"`
	Permissions model.Permissions `json:"permissions"`
}

func newRoleView(r *model.Role) roleView {
	id := r.ID
	return roleView{ID: &id, Name: r.RoleName, RoleID: r.RoleID, Permissions: r.Permissions}
}

func ListRoles(roles store.Roles) gin.HandlerFunc {
	return func(c *gin.Context) {
		stored, err := roles.ListRoles(c.Request.Context(), currentGuildID(c))
		if err != nil {
			serverError(c, "Failed to get roles", err)
			return
		}
		if len(stored) == 0 {
			stored = model.DefaultRoles()
		}
		out := make([]roleView, 0, len(stored))
		for i := range stored {
			out = append(out, newRoleView(&stored[i]))
		}
		response.OK(c, "Roles retrieved", out)
	}
}

// GetRole falls back to an all-false permission set for roles never saved.
func GetRole(roles store.Roles) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleID := c.Param("roleId")
		r, err := roles.GetRole(c.Request.Context(), currentGuildID(c), roleID)
		if errors.Is(err, store.ErrNotFound) {
			response.OK(c, "Role retrieved", roleView{
				Name:   model.RoleDisplayName(roleID),
				RoleID: roleID,
			})
			return
		}
		if err != nil {
			serverError(c, "Failed to get role", err)
			return
		}
		response.OK(c, "Role retrieved", newRoleView(r))
	}
}

func invalidPermission(perms map[string]bool) (string, bool) {
	for k := range perms {
		if !model.IsPermissionKey(k) {
			return k, true
		}
	}
	return "", false
}

// upsertRole overlays perms onto the stored role, or onto an all-false set
// when the role is new.
func upsertRole(c *gin.Context, roles store.Roles, guildID, roleID, roleName string, perms map[string]bool) (*model.Role, error) {
	ctx := c.Request.Context()
	r, err := roles.GetRole(ctx, guildID, roleID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r = &model.Role{GuildID: guildID, RoleID: roleID, RoleName: model.RoleDisplayName(roleID)}
	case err != nil:
		return nil, err
	}
	if roleName != "" {
		r.RoleName = roleName
	}
	r.Permissions = r.Permissions.Apply(perms)
	r.UpdatedBy, r.UpdatedByName = actor(c)
	r.UpdatedAt = time.Now().UTC()
	if err := roles.SaveRole(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func UpdateRolePermissions(roles store.Roles, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			RoleName    string          `json:"roleName"`
			Permissions map[string]bool `json:"permissions"`
		}
		if err := c.ShouldBindJSON(&input); err != nil || input.Permissions == nil {
			response.BadRequest(c, "Valid permissions object required")
			return
		}
		if k, bad := invalidPermission(input.Permissions); bad {
			response.BadRequest(c, "Invalid permission: "+k)
			return
		}

		guildID, roleID := currentGuildID(c), c.Param("roleId")
		r, err := upsertRole(c, roles, guildID, roleID, input.RoleName, input.Permissions)
		if err != nil {
			serverError(c, "Failed to update role", err)
			return
		}

		meta := make(map[string]interface{}, len(input.Permissions))
		for k, v := range input.Permissions {
			meta[k] = v
		}
		id, username := actor(c)
		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:    guildID,
			UserID:     id,
			Username:   username,
			Type:       model.LogTypeConfig,
			Action:     "UPDATE_ROLE_PERMISSIONS",
			Message:    fmt.Sprintf("Role %q permissions updated", r.RoleName),
			TargetID:   roleID,
			TargetName: r.RoleName,
			Metadata:   meta,
		})
		response.OK(c, "Role permissions updated", newRoleView(r))
	}
}

// UpdateMultipleRoles validates every entry before writing any of them.
func UpdateMultipleRoles(roles store.Roles, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Roles []struct {
				RoleID      string          `json:"roleId"`
				RoleName    string          `json:"roleName"`
				Permissions map[string]bool `json:"permissions"`
			} `json:"roles"`
		}
		if err := c.ShouldBindJSON(&input); err != nil || len(input.Roles) == 0 {
			response.BadRequest(c, "Roles array required")
			return
		}
		for _, r := range input.Roles {
			if r.RoleID == "" {
				response.BadRequest(c, "Role ID required")
				return
			}
			if k, bad := invalidPermission(r.Permissions); bad {
				response.BadRequest(c, "Invalid permission: "+k)
				return
			}
		}

		guildID := currentGuildID(c)
		out := make([]roleView, 0, len(input.Roles))
		ids := make([]string, 0, len(input.Roles))
		for _, in := range input.Roles {
			r, err := upsertRole(c, roles, guildID, in.RoleID, in.RoleName, in.Permissions)
			if err != nil {
				serverError(c, "Failed to update roles", err)
				return
			}
			out = append(out, newRoleView(r))
			ids = append(ids, r.RoleID)
		}

		id, username := actor(c)
		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:  guildID,
			UserID:   id,
			Username: username,
			Type:     model.LogTypeConfig,
			Action:   "UPDATE_MULTIPLE_ROLES",
			Message:  fmt.Sprintf("%d role(s) updated", len(out)),
			Metadata: map[string]interface{}{"roleIds": ids},
		})
		response.OK(c, "Roles updated successfully", out)
	}
}
