package models

import "github.com/ha1tch/hotelmig/pkg/remote"

// Record is a legacy record snapshot taking part in a batch
type Record interface {
	RemoteID() int
	// ParentRemoteID returns the remote id of a parent of the same entity
	// type, or 0.
	ParentRemoteID() int
}

// RemotePartner is a res.partner snapshot
type RemotePartner struct {
	ID                     int             `json:"id"`
	Name                   remote.Text     `json:"name"`
	IsCompany              bool            `json:"is_company"`
	ParentID               remote.Many2One `json:"parent_id"`
	Type                   remote.Text     `json:"type"`
	Ref                    remote.Text     `json:"ref"`
	Email                  remote.Text     `json:"email"`
	Phone                  remote.Text     `json:"phone"`
	Mobile                 remote.Text     `json:"mobile"`
	Street                 remote.Text     `json:"street"`
	Street2                remote.Text     `json:"street2"`
	Zip                    remote.Text     `json:"zip"`
	City                   remote.Text     `json:"city"`
	CountryID              remote.Many2One `json:"country_id"`
	StateID                remote.Many2One `json:"state_id"`
	Vat                    remote.Text     `json:"vat"`
	Comment                remote.Text     `json:"comment"`
	CategoryIDs            []int           `json:"category_id"`
	UserID                 remote.Many2One `json:"user_id"`
	Lang                   remote.Text     `json:"lang"`
	Customer               bool            `json:"customer"`
	Supplier               bool            `json:"supplier"`
	Gender                 remote.Text     `json:"gender"`
	BirthdateDate          remote.Text     `json:"birthdate_date"`
	DocumentType           remote.Text     `json:"document_type"`
	DocumentNumber         remote.Text     `json:"document_number"`
	DocumentExpeditionDate remote.Text     `json:"document_expedition_date"`
}

func (r RemotePartner) RemoteID() int       { return r.ID }
func (r RemotePartner) ParentRemoteID() int { return r.ParentID.ID }

// RemoteProduct is a product.product snapshot
type RemoteProduct struct {
	ID          int             `json:"id"`
	Name        remote.Text     `json:"name"`
	DefaultCode remote.Text     `json:"default_code"`
	Type        remote.Text     `json:"type"`
	ListPrice   float64         `json:"list_price"`
	CategID     remote.Many2One `json:"categ_id"`
	TaxesID     []int           `json:"taxes_id"`
	SaleOK      bool            `json:"sale_ok"`
	PurchaseOK  bool            `json:"purchase_ok"`
	Active      bool            `json:"active"`
	PerDay      bool            `json:"per_day"`
	PerPerson   bool            `json:"per_person"`
	DailyLimit  int             `json:"daily_limit"`
	IsExtraBed  bool            `json:"is_extra_bed"`
}

func (r RemoteProduct) RemoteID() int       { return r.ID }
func (r RemoteProduct) ParentRemoteID() int { return 0 }

// RemoteFolio is a hotel.folio snapshot
type RemoteFolio struct {
	ID               int             `json:"id"`
	Name             remote.Text     `json:"name"`
	PartnerID        remote.Many2One `json:"partner_id"`
	PartnerInvoiceID remote.Many2One `json:"partner_invoice_id"`
	DateOrder        remote.Text     `json:"date_order"`
	State            remote.Text     `json:"state"`
	ReservationType  remote.Text     `json:"reservation_type"`
	ChannelType      remote.Text     `json:"channel_type"`
	UserID           remote.Many2One `json:"user_id"`
	CustomerNotes    remote.Text     `json:"customer_notes"`
	InternalComment  remote.Text     `json:"internal_comment"`
	CancelledReason  remote.Text     `json:"cancelled_reason"`
	Email            remote.Text     `json:"email"`
	Phone            remote.Text     `json:"phone"`
}

func (r RemoteFolio) RemoteID() int       { return r.ID }
func (r RemoteFolio) ParentRemoteID() int { return 0 }

// RemoteReservation is a hotel.reservation snapshot, including the channel
// fields the legacy channel connector stored on it.
type RemoteReservation struct {
	ID                      int             `json:"id"`
	Name                    remote.Text     `json:"name"`
	FolioID                 remote.Many2One `json:"folio_id"`
	PartnerID               remote.Many2One `json:"partner_id"`
	VirtualRoomID           remote.Many2One `json:"virtual_room_id"`
	RoomID                  remote.Many2One `json:"room_id"`
	Checkin                 remote.Text     `json:"checkin"`
	Checkout                remote.Text     `json:"checkout"`
	Adults                  int             `json:"adults"`
	Children                int             `json:"children"`
	State                   remote.Text     `json:"state"`
	ReservationType         remote.Text     `json:"reservation_type"`
	ChannelType             remote.Text     `json:"channel_type"`
	Overbooking             bool            `json:"overbooking"`
	ToAssign                bool            `json:"to_assign"`
	ParentReservation       remote.Many2One `json:"parent_reservation"`
	ReservationLineIDs      []int           `json:"reservation_line_ids"`
	CallCenter              remote.Text     `json:"call_center"`
	Wrid                    remote.Text     `json:"wrid"`
	WChannelID              remote.Many2One `json:"wchannel_id"`
	WChannelReservationCode remote.Text     `json:"wchannel_reservation_code"`
	WStatus                 remote.Text     `json:"wstatus"`
	WStatusReason           remote.Text     `json:"wstatus_reason"`
}

func (r RemoteReservation) RemoteID() int       { return r.ID }
func (r RemoteReservation) ParentRemoteID() int { return r.ParentReservation.ID }

// RemoteReservationLine is one night of a reservation
type RemoteReservationLine struct {
	ID            int             `json:"id"`
	ReservationID remote.Many2One `json:"reservation_id"`
	Date          remote.Text     `json:"date"`
	Price         float64         `json:"price"`
	Discount      float64         `json:"discount"`
}

// RemoteService is a hotel.service snapshot
type RemoteService struct {
	ID             int             `json:"id"`
	Name           remote.Text     `json:"name"`
	ProductID      remote.Many2One `json:"product_id"`
	FolioID        remote.Many2One `json:"folio_id"`
	SerRoomLine    remote.Many2One `json:"ser_room_line"`
	ListPrice      float64         `json:"list_price"`
	ProductQty     float64         `json:"product_qty"`
	Discount       float64         `json:"discount"`
	ChannelType    remote.Text     `json:"channel_type"`
	ServiceLineIDs []int           `json:"service_line_ids"`
}

func (r RemoteService) RemoteID() int       { return r.ID }
func (r RemoteService) ParentRemoteID() int { return 0 }

// RemoteServiceLine is one day of a service
type RemoteServiceLine struct {
	ID        int             `json:"id"`
	ServiceID remote.Many2One `json:"service_id"`
	Date      remote.Text     `json:"date"`
	DayQty    float64         `json:"day_qty"`
}

// RemotePayment is an account.payment snapshot
type RemotePayment struct {
	ID            int             `json:"id"`
	Name          remote.Text     `json:"name"`
	Amount        float64         `json:"amount"`
	JournalID     remote.Many2One `json:"journal_id"`
	PartnerID     remote.Many2One `json:"partner_id"`
	PaymentDate   remote.Text     `json:"payment_date"`
	FolioID       remote.Many2One `json:"folio_id"`
	Communication remote.Text     `json:"communication"`
	State         remote.Text     `json:"state"`
	PaymentType   remote.Text     `json:"payment_type"`
	PartnerType   remote.Text     `json:"partner_type"`
}

func (r RemotePayment) RemoteID() int       { return r.ID }
func (r RemotePayment) ParentRemoteID() int { return 0 }

// RemotePaymentReturn is a payment.return snapshot
type RemotePaymentReturn struct {
	ID        int             `json:"id"`
	Name      remote.Text     `json:"name"`
	Date      remote.Text     `json:"date"`
	JournalID remote.Many2One `json:"journal_id"`
	FolioID   remote.Many2One `json:"folio_id"`
	State     remote.Text     `json:"state"`
	LineIDs   []int           `json:"line_ids"`
}

func (r RemotePaymentReturn) RemoteID() int       { return r.ID }
func (r RemotePaymentReturn) ParentRemoteID() int { return 0 }

// RemotePaymentReturnLine is one returned amount
type RemotePaymentReturnLine struct {
	ID          int             `json:"id"`
	ReturnID    remote.Many2One `json:"return_id"`
	PartnerID   remote.Many2One `json:"partner_id"`
	Amount      float64         `json:"amount"`
	Reference   remote.Text     `json:"reference"`
	MoveLineIDs []int           `json:"move_line_ids"`
}

// RemoteMoveLine links a journal item back to its payment
type RemoteMoveLine struct {
	ID        int             `json:"id"`
	PaymentID remote.Many2One `json:"payment_id"`
}

// RemoteInvoice is an account.invoice snapshot
type RemoteInvoice struct {
	ID             int             `json:"id"`
	Number         remote.Text     `json:"number"`
	PartnerID      remote.Many2One `json:"partner_id"`
	DateInvoice    remote.Text     `json:"date_invoice"`
	DateDue        remote.Text     `json:"date_due"`
	Type           remote.Text     `json:"type"`
	State          remote.Text     `json:"state"`
	Origin         remote.Text     `json:"origin"`
	Reference      remote.Text     `json:"reference"`
	Comment        remote.Text     `json:"comment"`
	JournalID      remote.Many2One `json:"journal_id"`
	AmountTotal    float64         `json:"amount_total"`
	PaymentIDs     []int           `json:"payment_ids"`
	InvoiceLineIDs []int           `json:"invoice_line_ids"`
}

func (r RemoteInvoice) RemoteID() int       { return r.ID }
func (r RemoteInvoice) ParentRemoteID() int { return 0 }

// RemoteInvoiceLine is an account.invoice.line snapshot
type RemoteInvoiceLine struct {
	ID                int             `json:"id"`
	InvoiceID         remote.Many2One `json:"invoice_id"`
	Name              remote.Text     `json:"name"`
	ProductID         remote.Many2One `json:"product_id"`
	Quantity          float64         `json:"quantity"`
	PriceUnit         float64         `json:"price_unit"`
	Discount          float64         `json:"discount"`
	InvoiceLineTaxIDs []int           `json:"invoice_line_tax_ids"`
	ReservationIDs    []int           `json:"reservation_ids"`
	ServiceIDs        []int           `json:"service_ids"`
}

// Reference data snapshots used by crosswalks

// RemoteCountry is a res.country snapshot
type RemoteCountry struct {
	ID   int         `json:"id"`
	Name remote.Text `json:"name"`
	Code remote.Text `json:"code"`
}

// RemoteCountryState is a res.country.state snapshot
type RemoteCountryState struct {
	ID        int             `json:"id"`
	Name      remote.Text     `json:"name"`
	Code      remote.Text     `json:"code"`
	CountryID remote.Many2One `json:"country_id"`
}

// RemoteNamed is any reference record matched by name
type RemoteNamed struct {
	ID   int         `json:"id"`
	Name remote.Text `json:"name"`
}

// RemoteUser is a res.users snapshot
type RemoteUser struct {
	ID        int             `json:"id"`
	Login     remote.Text     `json:"login"`
	PartnerID remote.Many2One `json:"partner_id"`
}

// RemoteJournal is an account.journal snapshot
type RemoteJournal struct {
	ID   int         `json:"id"`
	Name remote.Text `json:"name"`
	Code remote.Text `json:"code"`
}

// RemoteOTAChannel is a channel connector OTA snapshot
type RemoteOTAChannel struct {
	ID    int         `json:"id"`
	Name  remote.Text `json:"name"`
	OtaID remote.Text `json:"ota_id"`
}
