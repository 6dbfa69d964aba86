package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pearl/pkg/domain"
	"pearl/pkg/store"
)

type AccountQuery struct {
	Paging
	Query    string
	Verified *bool
	Role     string
}

type AdminAccountPatch struct {
	Role       *string `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive   *bool   `json:"isActive"`
	IsVerified *bool   `json:"isVerified"`
}

type ProfileQuery struct {
	Paging
	City    string
	Country string
}

type CodeQuery struct {
	Paging
	AccountID string
	Used      *bool
	Since     time.Time
}

func (a *App) ListAccounts(ctx context.Context, q AccountQuery) ([]domain.Account, error) {
	f := store.AccountFilter{Page: q.page(), Query: trim(q.Query), Verified: q.Verified}
	if q.Role != "" {
		role := domain.AccountRole(trim(q.Role))
		if !role.Valid() {
			return nil, invalid("role", "must be one of: user admin")
		}
		f.Role = role
	}
	accounts, err := a.store.ListAccounts(f)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// AdminUpdateAccount changes role and status flags. Deactivating an account
// revokes its sessions. Admins cannot demote or deactivate themselves.
func (a *App) AdminUpdateAccount(ctx context.Context, actor domain.Account, id string, patch AdminAccountPatch) (domain.Account, error) {
	if err := check(patch); err != nil {
		return domain.Account{}, err
	}
	acc, err := a.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if acc.ID == actor.ID {
		if patch.Role != nil && domain.AccountRole(*patch.Role) != domain.RoleAdmin {
			return domain.Account{}, conflict("role", "you cannot remove your own admin role")
		}
		if patch.IsActive != nil && !*patch.IsActive {
			return domain.Account{}, conflict("isActive", "you cannot deactivate your own account")
		}
	}
	deactivated := false
	columns := []string{"updated_at"}
	if patch.Role != nil {
		acc.Role = domain.AccountRole(*patch.Role)
		columns = append(columns, "role")
	}
	if patch.IsActive != nil {
		deactivated = acc.IsActive && !*patch.IsActive
		acc.IsActive = *patch.IsActive
		columns = append(columns, "is_active")
	}
	if patch.IsVerified != nil {
		acc.IsVerified = *patch.IsVerified
		columns = append(columns, "is_verified")
	}
	acc.UpdatedAt = a.clock()
	if err := a.store.UpdateAccountColumns(acc, columns...); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, notFound("account")
		}
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}
	if deactivated {
		if err := a.revokeAccountSessions(ctx, acc.ID); err != nil {
			return domain.Account{}, err
		}
	}
	if acc, err = a.GetAccount(ctx, acc.ID); err != nil {
		return domain.Account{}, err
	}
	a.log(ctx).Info("account_updated_by_admin",
		"account_id", acc.ID,
		"admin_id", actor.ID,
		"role", acc.Role,
		"is_active", acc.IsActive,
	)
	return acc, nil
}

func (a *App) ListProfiles(ctx context.Context, q ProfileQuery) ([]domain.Profile, error) {
	profiles, err := a.store.ListProfiles(store.ProfileFilter{
		Page:    q.page(),
		City:    trim(q.City),
		Country: trim(q.Country),
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

func (a *App) ListVerificationCodes(ctx context.Context, q CodeQuery) ([]domain.VerificationCode, error) {
	codes, err := a.store.ListVerificationCodes(store.CodeFilter{
		Page:      q.page(),
		AccountID: trim(q.AccountID),
		Used:      q.Used,
		Since:     q.Since,
	})
	if err != nil {
		return nil, fmt.Errorf("list verification codes: %w", err)
	}
	return codes, nil
}
