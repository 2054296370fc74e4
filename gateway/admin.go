package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jmcleod/docsession/session"
)

// AdminUser is an account as seen by an administrator, including soft-deleted ones.
type AdminUser struct {
	ID       int64        `json:"id"`
	Email    string       `json:"email"`
	FullName string       `json:"full_name"`
	Role     session.Role `json:"role"`
	Deleted  bool         `json:"deleted"`
}

// AdminFile is any user's document as seen by an administrator.
type AdminFile struct {
	ID           int64  `json:"id"`
	Filename     string `json:"filename"`
	UploadedBy   int64  `json:"uploaded_by"`
	Size         *int64 `json:"size"`
	UploadedTime string `json:"uploadedtime"`
	Deleted      bool   `json:"deleted"`
}

// Admin endpoints require the admin role; the service answers 403 otherwise,
// which is returned to the caller without ending the session.

func (d *Documents) ListUsers(ctx context.Context) ([]AdminUser, error) {
	var users []AdminUser
	if err := d.doJSON(ctx, http.MethodGet, "admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (d *Documents) PromoteUser(ctx context.Context, id int64) error {
	return d.userAction(ctx, http.MethodPut, id, "promote")
}

func (d *Documents) DemoteUser(ctx context.Context, id int64) error {
	return d.userAction(ctx, http.MethodPut, id, "demote")
}

func (d *Documents) SoftDeleteUser(ctx context.Context, id int64) error {
	return d.userAction(ctx, http.MethodPut, id, "soft_delete")
}

func (d *Documents) RestoreUser(ctx context.Context, id int64) error {
	return d.userAction(ctx, http.MethodPut, id, "restore")
}

// PurgeUser permanently deletes an account.
func (d *Documents) PurgeUser(ctx context.Context, id int64) error {
	return d.userAction(ctx, http.MethodDelete, id, "permanent")
}

func (d *Documents) ListAllFiles(ctx context.Context) ([]AdminFile, error) {
	var files []AdminFile
	if err := d.doJSON(ctx, http.MethodGet, "admin/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (d *Documents) SoftDeleteFile(ctx context.Context, id int64) error {
	return d.fileAction(ctx, http.MethodPut, id, "soft_delete")
}

func (d *Documents) RestoreFile(ctx context.Context, id int64) error {
	return d.fileAction(ctx, http.MethodPut, id, "restore")
}

// PurgeFile permanently deletes a document.
func (d *Documents) PurgeFile(ctx context.Context, id int64) error {
	return d.fileAction(ctx, http.MethodDelete, id, "permanent")
}

func (d *Documents) userAction(ctx context.Context, method string, id int64, action string) error {
	return d.doJSON(ctx, method, "admin/users/"+strconv.FormatInt(id, 10)+"/"+action, nil, nil)
}

func (d *Documents) fileAction(ctx context.Context, method string, id int64, action string) error {
	return d.doJSON(ctx, method, "admin/files/"+strconv.FormatInt(id, 10)+"/"+action, nil, nil)
}
