package sync

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/remote"
)

// Remote documents use camelCase keys and RFC 3339 dates. Decoding is
// tolerant: IDs may arrive as uuid.UUID, [16]byte, raw bytes or strings, and
// numbers as any numeric type the transport produced.

// EncodeAppointment converts an appointment to its remote form. Status is
// written display-cased ("Cancelled").
func EncodeAppointment(a canvass.Appointment) remote.Document {
	doc := remote.Document{
		"id":        a.ID.String(),
		"title":     a.Title,
		"notes":     a.Notes,
		"startDate": formatDate(a.StartDate),
		"endDate":   formatDate(a.EndDate),
		"location":  a.Location,
		"type":      string(a.Type),
		"status":    a.Status.DisplayName(),
		"createdAt": formatDate(a.CreatedAt),
		"updatedAt": formatDate(a.UpdatedAt),
	}
	if a.LeadID != nil {
		doc["leadId"] = a.LeadID.String()
	}
	if a.CalendarEventID != "" {
		doc["calendarEventId"] = a.CalendarEventID
	}
	if a.CustomTypeID != nil {
		doc["customTypeId"] = a.CustomTypeID.String()
	}
	return doc
}

// DecodeAppointment parses a remote appointment. docID is used when the
// document carries no id field.
func DecodeAppointment(docID string, doc remote.Document) (canvass.Appointment, error) {
	var a canvass.Appointment
	id, err := documentID(docID, doc)
	if err != nil {
		return a, err
	}
	a.ID = id
	a.Title = decodeString(doc["title"])
	a.Notes = decodeString(doc["notes"])
	a.Location = decodeString(doc["location"])
	a.CalendarEventID = decodeString(doc["calendarEventId"])

	if a.StartDate, err = decodeTime(doc["startDate"]); err != nil {
		return a, dataErr("startDate", err)
	}
	if a.EndDate, err = decodeTime(doc["endDate"]); err != nil {
		return a, dataErr("endDate", err)
	}
	if a.CreatedAt, err = decodeTime(doc["createdAt"]); err != nil {
		return a, dataErr("createdAt", err)
	}
	if a.UpdatedAt, err = decodeTime(doc["updatedAt"]); err != nil {
		return a, dataErr("updatedAt", err)
	}
	if a.LeadID, err = decodeOptionalUUID(doc["leadId"]); err != nil {
		return a, dataErr("leadId", err)
	}
	if a.CustomTypeID, err = decodeOptionalUUID(doc["customTypeId"]); err != nil {
		return a, dataErr("customTypeId", err)
	}

	a.Type = canvass.AppointmentType(strings.ToLower(decodeString(doc["type"])))
	if a.Type == "" {
		a.Type = canvass.AppointmentOther
	}
	status, ok := canvass.ParseAppointmentStatus(decodeString(doc["status"]))
	if !ok {
		return a, dataErr("status", fmt.Errorf("unknown status %q", doc["status"]))
	}
	a.Status = status

	if err := a.Validate(); err != nil {
		return a, canvass.E(canvass.KindData, "decode appointment", err)
	}
	return a, nil
}

// EncodeLead converts a lead to its remote form.
func EncodeLead(l canvass.Lead) remote.Document {
	doc := remote.Document{
		"id":        l.ID.String(),
		"name":      l.Name,
		"phone":     l.Phone,
		"email":     l.Email,
		"address":   l.Address,
		"latitude":  l.Latitude,
		"longitude": l.Longitude,
		"notes":     l.Notes,
		"price":     l.Price,
		"status":    string(l.Status),
		"createdAt": formatDate(l.CreatedAt),
		"updatedAt": formatDate(l.UpdatedAt),
	}
	if l.FollowUpDate != nil {
		doc["followUpDate"] = formatDate(*l.FollowUpDate)
	}
	if l.ServiceCategoryID != nil {
		doc["serviceCategoryId"] = l.ServiceCategoryID.String()
	}
	if l.AreaID != nil {
		doc["areaId"] = l.AreaID.String()
	}
	return doc
}

// DecodeLead parses a remote lead.
func DecodeLead(docID string, doc remote.Document) (canvass.Lead, error) {
	var l canvass.Lead
	id, err := documentID(docID, doc)
	if err != nil {
		return l, err
	}
	l.ID = id
	l.Name = decodeString(doc["name"])
	l.Phone = decodeString(doc["phone"])
	l.Email = decodeString(doc["email"])
	l.Address = decodeString(doc["address"])
	l.Notes = decodeString(doc["notes"])
	l.Status = canvass.LeadStatus(strings.ToLower(decodeString(doc["status"])))

	if l.Latitude, err = decodeFloat(doc["latitude"]); err != nil {
		return l, dataErr("latitude", err)
	}
	if l.Longitude, err = decodeFloat(doc["longitude"]); err != nil {
		return l, dataErr("longitude", err)
	}
	if l.Price, err = decodeFloat(doc["price"]); err != nil {
		return l, dataErr("price", err)
	}
	if l.CreatedAt, err = decodeTime(doc["createdAt"]); err != nil {
		return l, dataErr("createdAt", err)
	}
	if l.UpdatedAt, err = decodeTime(doc["updatedAt"]); err != nil {
		return l, dataErr("updatedAt", err)
	}
	if v, ok := doc["followUpDate"]; ok && v != nil {
		t, err := decodeTime(v)
		if err != nil {
			return l, dataErr("followUpDate", err)
		}
		l.FollowUpDate = &t
	}
	if l.ServiceCategoryID, err = decodeOptionalUUID(doc["serviceCategoryId"]); err != nil {
		return l, dataErr("serviceCategoryId", err)
	}
	if l.AreaID, err = decodeOptionalUUID(doc["areaId"]); err != nil {
		return l, dataErr("areaId", err)
	}

	if err := l.Validate(); err != nil {
		return l, canvass.E(canvass.KindData, "decode lead", err)
	}
	return l, nil
}

// EncodeCheckIn converts a check-in to its remote form.
func EncodeCheckIn(c canvass.FollowUpCheckIn) remote.Document {
	doc := remote.Document{
		"id":        c.ID.String(),
		"leadId":    c.LeadID.String(),
		"timestamp": formatDate(c.Timestamp),
		"channel":   string(c.Channel),
		"notes":     c.Notes,
	}
	if c.Outcome != canvass.OutcomeUnknown {
		doc["outcome"] = string(c.Outcome)
	}
	return doc
}

// DecodeCheckIn parses a remote check-in. A missing outcome decodes as
// canvass.OutcomeUnknown.
func DecodeCheckIn(docID string, doc remote.Document) (canvass.FollowUpCheckIn, error) {
	var c canvass.FollowUpCheckIn
	id, err := documentID(docID, doc)
	if err != nil {
		return c, err
	}
	c.ID = id
	leadID, err := decodeUUID(doc["leadId"])
	if err != nil {
		return c, dataErr("leadId", err)
	}
	c.LeadID = leadID
	if c.Timestamp, err = decodeTime(doc["timestamp"]); err != nil {
		return c, dataErr("timestamp", err)
	}
	c.Channel = canvass.ContactChannel(decodeString(doc["channel"]))
	c.Outcome = canvass.CheckInOutcome(decodeString(doc["outcome"]))
	c.Notes = decodeString(doc["notes"])

	if err := c.Validate(); err != nil {
		return c, canvass.E(canvass.KindData, "decode check-in", err)
	}
	return c, nil
}

func dataErr(field string, err error) error {
	return canvass.E(canvass.KindData, "decode", fmt.Errorf("%s: %w", field, err))
}

// documentID reads the entity ID from the body, falling back to the document
// key. When both are UUIDs they must agree.
func documentID(docID string, doc remote.Document) (uuid.UUID, error) {
	keyID, keyErr := uuid.Parse(docID)
	v, ok := doc["id"]
	if !ok || v == nil {
		if keyErr != nil {
			return uuid.Nil, dataErr("id", keyErr)
		}
		return keyID, nil
	}
	id, err := decodeUUID(v)
	if err != nil {
		return uuid.Nil, dataErr("id", err)
	}
	if keyErr == nil && id != keyID {
		return uuid.Nil, dataErr("id", fmt.Errorf("body id %s does not match document %s", id, keyID))
	}
	return id, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func decodeUUID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case [16]byte:
		return uuid.UUID(id), nil
	case []byte:
		if len(id) == 16 {
			return uuid.FromBytes(id)
		}
		return uuid.ParseBytes(id)
	case string:
		return uuid.Parse(id)
	case nil:
		return uuid.Nil, fmt.Errorf("missing id")
	default:
		return uuid.Nil, fmt.Errorf("unsupported id type %T", v)
	}
}

func decodeOptionalUUID(v any) (*uuid.UUID, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return nil, nil
	}
	id, err := decodeUUID(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	case nil:
		return time.Time{}, nil
	default:
		secs, err := decodeFloat(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("unsupported time type %T", v)
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	}
}

func decodeFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported number type %T", v)
	}
}
