package migration

import (
	"context"
	"fmt"

	"github.com/ha1tch/hotelmig/pkg/models"
)

// userPartner is a legacy user seen through its partner record: the users
// phase maps the partner behind each matched user.
type userPartner struct {
	models.RemoteUser
}

func (u userPartner) RemoteID() int       { return u.PartnerID.ID }
func (u userPartner) ParentRemoteID() int { return 0 }

// UserMigrator anchors the partner of every local user to the partner of the
// matching legacy user, so later partner phases never duplicate it.
type UserMigrator struct{}

func (UserMigrator) Entity() models.EntityType { return models.Partner }

func (UserMigrator) Fetch(ctx context.Context, mc *Context) ([]userPartner, error) {
	users, bad, err := searchRows[models.RemoteUser](ctx, mc.Source, models.User.RemoteModel(), nil, models.Fields(models.RemoteUser{}))
	if err != nil {
		return nil, err
	}
	mc.reject(models.User, bad)

	excluded := excludedLogins(mc.Settings.ExcludedLogins)
	var matched []userPartner
	for _, u := range users {
		if excluded[loginKey(u.Login.String())] || !u.PartnerID.Valid() {
			continue
		}
		if _, ok := mc.Crosswalks.Lookup(Users, u.ID); !ok {
			mc.Logger.Debug().Str("login", u.Login.String()).Msg("no local user")
			continue
		}
		matched = append(matched, userPartner{u})
	}
	return matched, nil
}

func (UserMigrator) Transform(ctx context.Context, mc *Context, rec userPartner) (*Transformed, error) {
	userID, _ := mc.Crosswalks.Lookup(Users, rec.ID)
	user, err := mc.Store.Get(ctx, string(models.User), userID)
	if err != nil {
		return nil, fmt.Errorf("local user %d: %w", userID, err)
	}
	partnerID := localRef(user, "partner")
	if partnerID == 0 {
		return nil, fmt.Errorf("local user %q has no partner", rec.Login.String())
	}

	partner, err := mc.Store.Get(ctx, string(models.Partner), partnerID)
	if err != nil {
		return nil, fmt.Errorf("local partner %d: %w", partnerID, err)
	}
	if anchored := localInt(partner["remote_id"]); anchored != 0 && anchored != rec.PartnerID.ID {
		return nil, fmt.Errorf("local partner %d of user %q already belongs to legacy partner %d", partnerID, rec.Login.String(), anchored)
	}

	t := &Transformed{Existing: partnerID}
	t.Fields.Set("remote_id", rec.PartnerID.ID)
	return t, nil
}

var _ Migrator[userPartner] = UserMigrator{}
