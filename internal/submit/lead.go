package submit

import (
	"strings"
	"time"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/ledger"
	"github.com/hpungsan/leadcap/internal/slots"
)

// excludedSlots are decomposition slots already represented by a pseudo
// slot or a ledger field.
var excludedSlots = func() map[string]bool {
	m := map[string]bool{
		slots.FirstName: true, slots.LastName: true, slots.MiddleName: true,
		slots.Title: true, slots.LastInitial: true, slots.StreetNumber: true,
		slots.StreetName: true, slots.Day: true, slots.Time: true, slots.Number: true,
	}
	for _, c := range slots.NoteComponents {
		m[c] = true
	}
	return m
}()

// Input is everything needed to build and submit one lead.
type Input struct {
	Ledger        *ledger.Ledger
	Slots         slots.Map
	Transcript    []contact.Message
	FinalResponse string
	RefID         string
	SessionID     string
	UserID        string
	Channel       string
	CurrentURL    string
	JobType       *JobType
	IsAbandoned   bool
	Now           time.Time
}

// BuildLead assembles the record for the sink. Fields start with the
// ledger's collected values, named by data type, followed by any other
// non-empty slot in name order. FinalResponse, when set, closes the
// transcript.
func BuildLead(in Input, source string) *contact.Lead {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	lead := &contact.Lead{
		Fields:      []contact.LeadField{},
		RefID:       in.RefID,
		UserID:      in.UserID,
		SessionID:   in.SessionID,
		Source:      source,
		IsAbandoned: in.IsAbandoned,
		SubmittedAt: now.UnixMilli(),
	}
	if in.JobType != nil {
		lead.JobTypeID = in.JobType.ID
		lead.AvailabilityClassID = in.JobType.ClassID
	}

	fieldNames := map[string]bool{}
	ledgerSlots := map[string]bool{}
	if in.Ledger != nil {
		for _, d := range in.Ledger.Data {
			ledgerSlots[strings.ToLower(d.SlotName)] = true
			name := string(d.Type)
			if !d.Filled() || fieldNames[strings.ToLower(name)] {
				continue
			}
			fieldNames[strings.ToLower(name)] = true
			lead.Fields = append(lead.Fields, contact.LeadField{Name: name, Value: d.CollectedValue})
		}
		_, missing := in.Ledger.NextMissing()
		lead.IsComplete = !missing && in.Ledger.Complete()
	}

	for _, name := range in.Slots.Names() {
		lower := strings.ToLower(name)
		value := in.Slots.Get(name)
		if value == "" || excludedSlots[lower] || ledgerSlots[lower] || fieldNames[lower] {
			continue
		}
		fieldNames[lower] = true
		lead.Fields = append(lead.Fields, contact.LeadField{Name: strings.ToUpper(name), Value: value})
	}

	lead.Transcript = append([]contact.Message{}, in.Transcript...)
	if in.FinalResponse != "" {
		lead.Transcript = append(lead.Transcript, contact.Message{
			Role:      contact.RoleAssistant,
			Text:      in.FinalResponse,
			Timestamp: now.UnixMilli(),
		})
	}
	return lead
}
