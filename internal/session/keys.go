package session

// Key names one value in a session.
type Key string

const (
	KeySent          Key = "leadcap:sent"          // lead submitted this generation
	KeyDelivered     Key = "leadcap:delivered"     // the last submission was accepted by the sink
	KeyAskedType     Key = "leadcap:askedType"     // data type asked on the previous turn
	KeySlots         Key = "leadcap:slots"         // merged slot snapshot
	KeyLedger        Key = "leadcap:ledger"        // capture ledger for the current generation
	KeyRefID         Key = "leadcap:refId"         // ref id assigned by the sink
	KeyAsideResponse Key = "leadcap:asideResponse" // pending aside to prefix the next question
	KeyBusyDays      Key = "leadcap:busyDays"      // cached availability lookup
	KeyJobType       Key = "leadcap:jobType"       // cached job type lookup
	KeyDescription   Key = "leadcap:description"   // description the job type was resolved from
)

// Outcome keys are published for the host, which reads them from the shared
// session store to branch its own flow. The engine writes them and clears
// them with the rest of the generation but never reads them back.
const (
	KeyAbandoned     Key = "leadcap:abandoned"     // session ended with a partial lead
	KeyRefused       Key = "leadcap:refused"       // user declined a field; capture should stop
	KeyRefusalType   Key = "leadcap:refusalType"   // refusal category from the judgment
	KeyRefusalLedger Key = "leadcap:refusalLedger" // partial ledger at the time of refusal
)

// AllKeys lists every key the engine writes.
var AllKeys = []Key{
	KeySent, KeyDelivered, KeyAskedType, KeySlots, KeyLedger, KeyRefID, KeyAsideResponse,
	KeyBusyDays, KeyJobType, KeyDescription,
	KeyAbandoned, KeyRefused, KeyRefusalType, KeyRefusalLedger,
}
