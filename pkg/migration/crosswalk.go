package migration

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
	"github.com/ha1tch/hotelmig/pkg/storage"
)

// Domain names one crosswalk table
type Domain string

const (
	Countries         Domain = "countries"
	States            Domain = "states"
	PartnerCategories Domain = "partner-categories"
	ProductCategories Domain = "product-categories"
	Users             Domain = "users"
	RoomTypes         Domain = "room-types"
	Rooms             Domain = "rooms"
	Journals          Domain = "journals"
	OTAChannels       Domain = "ota-channels"
	Taxes             Domain = "taxes"
)

var domainEntities = map[Domain]models.EntityType{
	Countries:         models.Country,
	States:            models.CountryState,
	PartnerCategories: models.PartnerCategory,
	ProductCategories: models.ProductCategory,
	Users:             models.User,
	RoomTypes:         models.RoomType,
	Rooms:             models.Room,
	Journals:          models.Journal,
	OTAChannels:       models.OTAChannel,
	Taxes:             models.Tax,
}

// Entity returns the local and legacy entity type of the domain
func (d Domain) Entity() models.EntityType {
	return domainEntities[d]
}

// Crosswalks holds the remote id -> local id tables of one phase. It is
// read-only once built.
type Crosswalks struct {
	tables       map[Domain]map[int]int
	countryCodes map[int]string
	defaultTax   int
}

// NewCrosswalks creates empty tables
func NewCrosswalks() *Crosswalks {
	return &Crosswalks{
		tables:       make(map[Domain]map[int]int),
		countryCodes: make(map[int]string),
	}
}

func (c *Crosswalks) set(d Domain, remoteID, localID int) {
	if c.tables[d] == nil {
		c.tables[d] = make(map[int]int)
	}
	c.tables[d][remoteID] = localID
}

// Lookup maps a remote reference record to its local equivalent
func (c *Crosswalks) Lookup(d Domain, remoteID int) (int, bool) {
	if c == nil || remoteID <= 0 {
		return 0, false
	}
	id, ok := c.tables[d][remoteID]
	return id, ok
}

// LookupAll maps several remote ids; unmatched ids are dropped
func (c *Crosswalks) LookupAll(d Domain, remoteIDs []int) []int {
	ids := make([]int, 0, len(remoteIDs))
	for _, remoteID := range remoteIDs {
		if id, ok := c.Lookup(d, remoteID); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Has reports whether the domain was built
func (c *Crosswalks) Has(d Domain) bool {
	if c == nil {
		return false
	}
	_, ok := c.tables[d]
	return ok
}

// Len returns the number of matched records in a domain
func (c *Crosswalks) Len(d Domain) int {
	if c == nil {
		return 0
	}
	return len(c.tables[d])
}

// CountryCode returns the ISO code of a remote country
func (c *Crosswalks) CountryCode(remoteID int) string {
	if c == nil {
		return ""
	}
	return c.countryCodes[remoteID]
}

// DefaultTax returns the local tax used when a remote tax has no match
func (c *Crosswalks) DefaultTax() (int, bool) {
	if c == nil || c.defaultTax == 0 {
		return 0, false
	}
	return c.defaultTax, true
}

// Builder correlates legacy reference data with the local reference data
type Builder struct {
	source   remote.Source
	store    storage.Store
	settings Settings
	logger   zerolog.Logger
}

// NewBuilder creates a crosswalk builder
func NewBuilder(source remote.Source, store storage.Store, settings Settings, logger zerolog.Logger) *Builder {
	return &Builder{source: source, store: store, settings: settings, logger: logger}
}

// Build constructs the requested domains. Unmatched remote records are left
// out of the tables; only remote and storage errors fail the build.
func (b *Builder) Build(ctx context.Context, domains ...Domain) (*Crosswalks, error) {
	cw := NewCrosswalks()
	for _, d := range domains {
		if cw.Has(d) {
			continue
		}
		cw.tables[d] = make(map[int]int)

		var err error
		switch d {
		case Countries:
			err = b.matchCountries(ctx, cw)
		case States:
			err = b.matchStates(ctx, cw)
		case PartnerCategories, ProductCategories, RoomTypes, Rooms:
			err = b.matchNames(ctx, cw, d)
		case Users:
			err = b.matchUsers(ctx, cw)
		case Journals:
			err = b.matchJournals(ctx, cw)
		case OTAChannels:
			err = b.matchOTAChannels(ctx, cw)
		case Taxes:
			err = b.matchTaxes(ctx, cw)
		default:
			err = fmt.Errorf("unknown crosswalk domain %q", d)
		}
		if err != nil {
			return nil, fmt.Errorf("crosswalk %s: %w", d, err)
		}

		b.logger.Debug().Str("domain", string(d)).Int("matched", cw.Len(d)).Msg("crosswalk built")
	}
	return cw, nil
}

func (b *Builder) unmatched(d Domain, remoteID int, key string) {
	b.logger.Debug().Str("domain", string(d)).Int("remote_id", remoteID).Str("key", key).Msg("no local match")
}

func (b *Builder) loadCountryCodes(ctx context.Context, cw *Crosswalks) ([]models.RemoteCountry, error) {
	countries, err := loadReference[models.RemoteCountry](ctx, b, models.Country.RemoteModel())
	if err != nil {
		return nil, err
	}
	for _, c := range countries {
		cw.countryCodes[c.ID] = strings.ToUpper(c.Code.String())
	}
	return countries, nil
}

// matchCountries correlates by external identifier (base.es), falling back
// to the ISO code.
func (b *Builder) matchCountries(ctx context.Context, cw *Crosswalks) error {
	countries, err := b.loadCountryCodes(ctx, cw)
	if err != nil {
		return err
	}

	ids := make([]int, len(countries))
	for i, c := range countries {
		ids[i] = c.ID
	}
	xmlIDs, err := b.source.ExternalIDs(ctx, models.Country.RemoteModel(), ids)
	if err != nil {
		return err
	}

	byXMLID, err := b.localIndex(ctx, models.Country, func(rec map[string]interface{}) string {
		return localString(rec, "xml_id")
	})
	if err != nil {
		return err
	}
	byCode, err := b.localIndex(ctx, models.Country, func(rec map[string]interface{}) string {
		return strings.ToUpper(localString(rec, "code"))
	})
	if err != nil {
		return err
	}

	for _, c := range countries {
		if id, ok := byXMLID[xmlIDs[c.ID]]; ok && xmlIDs[c.ID] != "" {
			cw.set(Countries, c.ID, id)
			continue
		}
		if id, ok := byCode[cw.countryCodes[c.ID]]; ok && cw.countryCodes[c.ID] != "" {
			cw.set(Countries, c.ID, id)
			continue
		}
		b.unmatched(Countries, c.ID, xmlIDs[c.ID])
	}
	return nil
}

// matchStates correlates by state name within the parent country
func (b *Builder) matchStates(ctx context.Context, cw *Crosswalks) error {
	if len(cw.countryCodes) == 0 {
		if _, err := b.loadCountryCodes(ctx, cw); err != nil {
			return err
		}
	}

	states, err := loadReference[models.RemoteCountryState](ctx, b, models.CountryState.RemoteModel())
	if err != nil {
		return err
	}

	localCodes := make(map[int]string)
	countries, err := b.store.List(ctx, string(models.Country))
	if err != nil {
		return err
	}
	for _, rec := range countries {
		localCodes[localInt(rec["id"])] = strings.ToUpper(localString(rec, "code"))
	}

	index, err := b.localIndex(ctx, models.CountryState, func(rec map[string]interface{}) string {
		return stateKey(localString(rec, "name"), localCodes[localRef(rec, "country")])
	})
	if err != nil {
		return err
	}

	for _, s := range states {
		key := stateKey(s.Name.String(), cw.countryCodes[s.CountryID.ID])
		if id, ok := index[key]; ok {
			cw.set(States, s.ID, id)
		} else {
			b.unmatched(States, s.ID, key)
		}
	}
	return nil
}

func stateKey(name, countryCode string) string {
	if countryCode == "" {
		return ""
	}
	return normalizeKey(name) + "|" + countryCode
}

// matchNames correlates by unique normalized name
func (b *Builder) matchNames(ctx context.Context, cw *Crosswalks, d Domain) error {
	records, err := loadReference[models.RemoteNamed](ctx, b, d.Entity().RemoteModel())
	if err != nil {
		return err
	}

	index, err := b.localIndex(ctx, d.Entity(), func(rec map[string]interface{}) string {
		return normalizeKey(localString(rec, "name"))
	})
	if err != nil {
		return err
	}

	for _, r := range records {
		key := normalizeKey(r.Name.String())
		if id, ok := index[key]; ok {
			cw.set(d, r.ID, id)
		} else {
			b.unmatched(d, r.ID, key)
		}
	}
	return nil
}

// matchUsers correlates by login, leaving out the excluded service logins
func (b *Builder) matchUsers(ctx context.Context, cw *Crosswalks) error {
	users, err := loadReference[models.RemoteUser](ctx, b, models.User.RemoteModel())
	if err != nil {
		return err
	}

	index, err := b.localIndex(ctx, models.User, func(rec map[string]interface{}) string {
		return loginKey(localString(rec, "login"))
	})
	if err != nil {
		return err
	}

	excluded := excludedLogins(b.settings.ExcludedLogins)
	for _, u := range users {
		key := loginKey(u.Login.String())
		if excluded[key] {
			continue
		}
		if id, ok := index[key]; ok {
			cw.set(Users, u.ID, id)
		} else {
			b.unmatched(Users, u.ID, key)
		}
	}
	return nil
}

func loginKey(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

func excludedLogins(logins []string) map[string]bool {
	excluded := make(map[string]bool, len(logins))
	for _, login := range logins {
		excluded[loginKey(login)] = true
	}
	return excluded
}

// matchJournals correlates by journal code, then by name
func (b *Builder) matchJournals(ctx context.Context, cw *Crosswalks) error {
	journals, err := loadReference[models.RemoteJournal](ctx, b, models.Journal.RemoteModel())
	if err != nil {
		return err
	}

	byCode, err := b.localIndex(ctx, models.Journal, func(rec map[string]interface{}) string {
		return strings.ToUpper(strings.TrimSpace(localString(rec, "code")))
	})
	if err != nil {
		return err
	}
	byName, err := b.localIndex(ctx, models.Journal, func(rec map[string]interface{}) string {
		return normalizeKey(localString(rec, "name"))
	})
	if err != nil {
		return err
	}

	for _, j := range journals {
		code := strings.ToUpper(strings.TrimSpace(j.Code.String()))
		if id, ok := byCode[code]; ok && code != "" {
			cw.set(Journals, j.ID, id)
			continue
		}
		if id, ok := byName[normalizeKey(j.Name.String())]; ok {
			cw.set(Journals, j.ID, id)
			continue
		}
		b.unmatched(Journals, j.ID, code)
	}
	return nil
}

// matchOTAChannels correlates by the channel manager's OTA id
func (b *Builder) matchOTAChannels(ctx context.Context, cw *Crosswalks) error {
	channels, err := loadReference[models.RemoteOTAChannel](ctx, b, models.OTAChannel.RemoteModel())
	if err != nil {
		return err
	}

	index, err := b.localIndex(ctx, models.OTAChannel, func(rec map[string]interface{}) string {
		return strings.TrimSpace(localString(rec, "ota_id"))
	})
	if err != nil {
		return err
	}

	for _, c := range channels {
		key := strings.TrimSpace(c.OtaID.String())
		if id, ok := index[key]; ok {
			cw.set(OTAChannels, c.ID, id)
		} else {
			b.unmatched(OTAChannels, c.ID, key)
		}
	}
	return nil
}

// matchTaxes correlates by name and picks the default tax by rate
func (b *Builder) matchTaxes(ctx context.Context, cw *Crosswalks) error {
	if err := b.matchNames(ctx, cw, Taxes); err != nil {
		return err
	}

	taxes, err := b.store.List(ctx, string(models.Tax))
	if err != nil {
		return err
	}
	for _, rec := range taxes {
		if amount, ok := rec["amount"].(float64); ok && amount == b.settings.DefaultTaxRate {
			cw.defaultTax = localInt(rec["id"])
			break
		}
	}
	if cw.defaultTax == 0 {
		b.logger.Warn().Float64("rate", b.settings.DefaultTaxRate).Msg("no local tax for the default rate")
	}
	return nil
}

// loadReference reads every record of a reference model. Rows that do not
// decode are left out of the crosswalk like any unmatched key.
func loadReference[T any](ctx context.Context, b *Builder, model string) ([]T, error) {
	var zero T
	rows, bad, err := searchRows[T](ctx, b.source, model, nil, models.Fields(zero))
	if err != nil {
		return nil, err
	}
	for _, id := range bad.ids() {
		b.logger.Debug().Str("model", model).Int("remote_id", id).Str("reason", bad[id]).Msg("skipped malformed row")
	}
	return rows, nil
}

// localIndex maps a matching key to a local record id. Empty keys are
// skipped; a key shared by several local records is ambiguous and left out.
func (b *Builder) localIndex(ctx context.Context, entity models.EntityType, key func(map[string]interface{}) string) (map[string]int, error) {
	records, err := b.store.List(ctx, string(entity))
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(records))
	ambiguous := make(map[string]bool)
	for _, rec := range records {
		k := key(rec)
		if k == "" {
			continue
		}
		if _, exists := index[k]; exists {
			ambiguous[k] = true
			continue
		}
		index[k] = localInt(rec["id"])
	}
	for k := range ambiguous {
		delete(index, k)
		b.logger.Debug().Str("entity", string(entity)).Str("key", k).Msg("ambiguous local key")
	}
	return index, nil
}

// normalizeKey folds case, accents and spacing so "  Málaga " matches
// "malaga".
func normalizeKey(s string) string {
	decomposed := norm.NFD.String(s)
	var result strings.Builder
	result.Grow(len(decomposed))

	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		result.WriteRune(unicode.ToLower(r))
	}

	return strings.Join(strings.Fields(result.String()), " ")
}

func localString(rec map[string]interface{}, field string) string {
	s, _ := rec[field].(string)
	return s
}

func localInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func localRef(rec map[string]interface{}, field string) int {
	if ref, ok := models.IsReference(rec[field]); ok {
		return ref.ID
	}
	return 0
}
