package dmssync

import (
	"context"
	"errors"
	"strings"

	"github.com/vhclabs/vhc_backend/models"
	"github.com/vhclabs/vhc_backend/utils"
	"gorm.io/gorm"
)

// resolveState carries the per-run counters the resolvers increment.
type resolveState struct {
	CustomersCreated int
	VehiclesCreated  int
}

// resolveCustomer finds or creates the customer a booking belongs to.
// Matching order: external id, then email, then mobile. A match found by
// email or mobile gets the DMS identity backfilled so the next import hits
// the external-id strategy directly. Existing customer data is never
// overwritten.
func (e *Engine) resolveCustomer(ctx context.Context, cfg *runConfig, b *ExternalBooking, state *resolveState) (*models.Customer, error) {
	orgId := cfg.Org.ID.String()
	source := cfg.Conn.Provider

	externalId := strings.TrimSpace(b.CustomerId)
	email := strings.TrimSpace(b.CustomerEmail)
	mobile := utils.NormalizeMobile(b.CustomerMobile)

	type strategy struct {
		name     string
		find     func() (*models.Customer, error)
		backfill bool
	}

	strategies := []strategy{
		{
			name: "external_id",
			find: func() (*models.Customer, error) {
				if externalId == "" {
					return nil, nil
				}
				return e.findCustomer(ctx, "organization_id = ? AND external_id = ? AND external_source = ?", orgId, externalId, source)
			},
		},
		{
			name:     "email",
			backfill: true,
			find: func() (*models.Customer, error) {
				if email == "" {
					return nil, nil
				}
				return e.findCustomer(ctx, "organization_id = ? AND LOWER(email) = ?", orgId, strings.ToLower(email))
			},
		},
		{
			name:     "mobile",
			backfill: true,
			find: func() (*models.Customer, error) {
				if mobile == "" {
					return nil, nil
				}
				return e.findCustomer(ctx, "organization_id = ? AND mobile = ?", orgId, mobile)
			},
		},
	}

	for _, s := range strategies {
		customer, err := s.find()
		if err != nil {
			return nil, &EntityCreationError{Entity: "customer", Err: err}
		}
		if customer == nil {
			continue
		}
		if s.backfill && customer.ExternalId == "" && externalId != "" {
			updates := map[string]interface{}{
				"external_id":     externalId,
				"external_source": source,
			}
			if err := e.db.WithContext(ctx).Model(customer).Updates(updates).Error; err != nil {
				return nil, &EntityCreationError{Entity: "customer", Err: err}
			}
		}
		return customer, nil
	}

	firstName := strings.TrimSpace(b.CustomerFirstName)
	lastName := strings.TrimSpace(b.CustomerLastName)
	if externalId == "" && email == "" && mobile == "" && firstName == "" && lastName == "" {
		return nil, &EntityCreationError{Entity: "customer", Err: errors.New("booking has no customer identity")}
	}

	if email != "" && !utils.IsValidEmail(email) {
		e.logger.WithFields(map[string]interface{}{
			"organization_id": orgId,
			"booking_id":      b.BookingId,
		}).Warn("customer email did not validate, storing as-is")
	}
	if mobile != "" {
		if err := utils.ValidatePhoneNumber(mobile, utils.CountryCode); err != nil {
			e.logger.WithFields(map[string]interface{}{
				"organization_id": orgId,
				"booking_id":      b.BookingId,
				"mobile":          mobile,
			}).Warn("customer mobile did not validate, storing as-is")
		}
	}

	customer := models.Customer{
		OrganizationId: orgId,
		ExternalId:     externalId,
		ExternalSource: source,
		FirstName:      firstName,
		LastName:       lastName,
		Email:          email,
		Mobile:         mobile,
	}
	if err := e.db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, &EntityCreationError{Entity: "customer", Err: err}
	}
	state.CustomersCreated++
	return &customer, nil
}

func (e *Engine) findCustomer(ctx context.Context, query string, args ...interface{}) (*models.Customer, error) {
	var customer models.Customer
	err := e.db.WithContext(ctx).Where(query, args...).Order("id asc").First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

// resolveVehicle finds or creates the vehicle on a booking. Matching order:
// external id, then normalized registration, then VIN. Registration and VIN
// hits backfill the DMS identity, re-link the vehicle to the resolved
// customer, and gap-fill attributes that are currently empty.
func (e *Engine) resolveVehicle(ctx context.Context, cfg *runConfig, b *ExternalBooking, customer *models.Customer, state *resolveState) (*models.Vehicle, error) {
	orgId := cfg.Org.ID.String()
	source := cfg.Conn.Provider

	externalId := strings.TrimSpace(b.VehicleId)
	registration := utils.NormalizeRegistration(b.VehicleReg)
	vin := utils.NormalizeVin(b.VehicleVin)

	type strategy struct {
		name     string
		find     func() (*models.Vehicle, error)
		backfill bool
	}

	strategies := []strategy{
		{
			name: "external_id",
			find: func() (*models.Vehicle, error) {
				if externalId == "" {
					return nil, nil
				}
				return e.findVehicle(ctx, "organization_id = ? AND external_id = ? AND external_source = ?", orgId, externalId, source)
			},
		},
		{
			name:     "registration",
			backfill: true,
			find: func() (*models.Vehicle, error) {
				if registration == "" {
					return nil, nil
				}
				return e.findVehicle(ctx, "organization_id = ? AND registration = ?", orgId, registration)
			},
		},
		{
			name:     "vin",
			backfill: true,
			find: func() (*models.Vehicle, error) {
				if vin == "" {
					return nil, nil
				}
				return e.findVehicle(ctx, "organization_id = ? AND vin = ?", orgId, vin)
			},
		},
	}

	for _, s := range strategies {
		vehicle, err := s.find()
		if err != nil {
			return nil, &EntityCreationError{Entity: "vehicle", Err: err}
		}
		if vehicle == nil {
			continue
		}
		if s.backfill {
			updates := vehicleGapFill(vehicle, b)
			if vehicle.ExternalId == "" && externalId != "" {
				updates["external_id"] = externalId
				updates["external_source"] = source
			}
			if vehicle.CustomerId != customer.ID {
				updates["customer_id"] = customer.ID
			}
			if s.name == "vin" && registration != "" && vehicle.Registration != registration {
				updates["registration"] = registration
			}
			if len(updates) > 0 {
				if err := e.db.WithContext(ctx).Model(vehicle).Updates(updates).Error; err != nil {
					return nil, &EntityCreationError{Entity: "vehicle", Err: err}
				}
			}
		}
		return vehicle, nil
	}

	if externalId == "" && registration == "" && vin == "" {
		return nil, &EntityCreationError{Entity: "vehicle", Err: errors.New("booking has no vehicle identity")}
	}

	vehicle := models.Vehicle{
		OrganizationId: orgId,
		CustomerId:     customer.ID,
		ExternalId:     externalId,
		ExternalSource: source,
		Registration:   registration,
		Vin:            vin,
		Make:           strings.TrimSpace(b.VehicleMake),
		Model:          strings.TrimSpace(b.VehicleModel),
		Year:           b.VehicleYear,
		Color:          strings.TrimSpace(b.VehicleColor),
		FuelType:       strings.TrimSpace(b.VehicleFuelType),
		Mileage:        b.Mileage,
	}
	if err := e.db.WithContext(ctx).Create(&vehicle).Error; err != nil {
		return nil, &EntityCreationError{Entity: "vehicle", Err: err}
	}
	state.VehiclesCreated++
	return &vehicle, nil
}

func (e *Engine) findVehicle(ctx context.Context, query string, args ...interface{}) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := e.db.WithContext(ctx).Where(query, args...).Order("id asc").First(&vehicle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vehicle, nil
}

// vehicleGapFill returns the column updates that fill empty vehicle
// attributes from the booking. Populated values are left alone.
func vehicleGapFill(v *models.Vehicle, b *ExternalBooking) map[string]interface{} {
	updates := map[string]interface{}{}
	if v.Vin == "" {
		if vin := utils.NormalizeVin(b.VehicleVin); vin != "" {
			updates["vin"] = vin
		}
	}
	if v.Make == "" && strings.TrimSpace(b.VehicleMake) != "" {
		updates["make"] = strings.TrimSpace(b.VehicleMake)
	}
	if v.Model == "" && strings.TrimSpace(b.VehicleModel) != "" {
		updates["model"] = strings.TrimSpace(b.VehicleModel)
	}
	if v.Year == 0 && b.VehicleYear != 0 {
		updates["year"] = b.VehicleYear
	}
	if v.Color == "" && strings.TrimSpace(b.VehicleColor) != "" {
		updates["color"] = strings.TrimSpace(b.VehicleColor)
	}
	if v.FuelType == "" && strings.TrimSpace(b.VehicleFuelType) != "" {
		updates["fuel_type"] = strings.TrimSpace(b.VehicleFuelType)
	}
	if v.Mileage == 0 && b.Mileage != 0 {
		updates["mileage"] = b.Mileage
	}
	return updates
}
