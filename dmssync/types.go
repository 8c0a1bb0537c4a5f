package dmssync

import (
	"github.com/vhclabs/vhc_backend/models"
)

// ExternalBooking is one appointment as the DMS reports it. It is never
// persisted; it only exists for the duration of one import run.
type ExternalBooking struct {
	BookingId   string `json:"booking_id"`
	Status      string `json:"status"`
	ServiceType string `json:"service_type"`

	CustomerId        string `json:"customer_id"`
	CustomerFirstName string `json:"customer_first_name"`
	CustomerLastName  string `json:"customer_last_name"`
	CustomerEmail     string `json:"customer_email"`
	CustomerMobile    string `json:"customer_mobile"`

	VehicleId       string `json:"vehicle_id"`
	VehicleReg      string `json:"vehicle_reg"`
	VehicleVin      string `json:"vehicle_vin"`
	VehicleMake     string `json:"vehicle_make"`
	VehicleModel    string `json:"vehicle_model"`
	VehicleYear     int    `json:"vehicle_year"`
	VehicleColor    string `json:"vehicle_color"`
	VehicleFuelType string `json:"vehicle_fuel_type"`

	Date        string `json:"date"`
	Time        string `json:"time"`
	Mileage     int    `json:"mileage"`
	Description string `json:"description"`
}

// ImportParams is the trigger surface for one run.
type ImportParams struct {
	OrganizationId string
	SiteId         *int
	Date           string // YYYY-MM-DD
	ImportType     string
	TriggeredBy    string
}

// ImportResult is returned synchronously to whoever triggered the run.
type ImportResult struct {
	RunId               uint                    `json:"runId"`
	Status              string                  `json:"status"`
	BookingsFound       int                     `json:"bookingsFound"`
	BookingsImported    int                     `json:"bookingsImported"`
	BookingsSkipped     int                     `json:"bookingsSkipped"`
	BookingsFailed      int                     `json:"bookingsFailed"`
	CustomersCreated    int                     `json:"customersCreated"`
	VehiclesCreated     int                     `json:"vehiclesCreated"`
	HealthChecksCreated int                     `json:"healthChecksCreated"`
	Errors              []models.ImportRunError `json:"errors"`
}

type ConnectRequest struct {
	APIKey     string `json:"apiKey"`
	DealerRef  string `json:"dealerRef"`
	DealerName string `json:"dealerName"`
}

type UpdateSettingsRequest struct {
	DefaultTemplateId int      `json:"defaultTemplateId"`
	ServiceTypes      []string `json:"serviceTypes"`
}

type TriggerImportRequest struct {
	SiteId     *int   `json:"siteId"`
	Date       string `json:"date"`
	ImportType string `json:"importType"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type StatusResponse struct {
	Connection       ConnectionResponse `json:"connection"`
	LastImportAt     *string            `json:"lastImportAt"`
	LastImportStatus string             `json:"lastImportStatus"`
	LastImportError  string             `json:"lastImportError"`
	Settings         SettingsResponse   `json:"settings"`
}

type ConnectionResponse struct {
	Status     string `json:"status"`
	DealerRef  string `json:"dealerRef"`
	DealerName string `json:"dealerName"`
}

type SettingsResponse struct {
	DefaultTemplateId int      `json:"defaultTemplateId"`
	ServiceTypes      []string `json:"serviceTypes"`
}

type ImportHistoryResponse struct {
	Items []ImportRunResponse `json:"items"`
}

type ImportRunResponse struct {
	ID                  uint    `json:"id"`
	ImportType          string  `json:"importType"`
	ImportDate          string  `json:"importDate"`
	Status              string  `json:"status"`
	BookingsFound       int     `json:"bookingsFound"`
	BookingsImported    int     `json:"bookingsImported"`
	BookingsSkipped     int     `json:"bookingsSkipped"`
	BookingsFailed      int     `json:"bookingsFailed"`
	TriggeredBy         string  `json:"triggeredBy"`
	StartedAt           *string `json:"startedAt"`
	CompletedAt         *string `json:"completedAt"`
	HealthChecksCreated int     `json:"healthChecksCreated"`
}

type ImportRunDetailResponse struct {
	ImportRunResponse
	CustomersCreated int                     `json:"customersCreated"`
	VehiclesCreated  int                     `json:"vehiclesCreated"`
	Errors           []models.ImportRunError `json:"errors"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type ImportPubSubPayload struct {
	OrganizationId string `json:"organization_id"`
	SiteId         *int   `json:"site_id"`
	Date           string `json:"date"`
	ImportType     string `json:"import_type"`
	TriggeredBy    string `json:"triggered_by"`
}
