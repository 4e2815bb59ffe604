package slots

import (
	"reflect"
	"testing"

	"github.com/hpungsan/leadcap/internal/contact"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name       string
		in         MergeInput
		want       map[string]string
		wantAlt    map[string]string
		wantPseudo map[string]string
	}{
		{
			name: "session outranks request",
			in: MergeInput{
				Session:    FromValues(map[string]string{"zip": "02139"}),
				Request:    FromValues(map[string]string{"zip": "10001", "email": "a@b.co"}),
				Heuristics: true,
			},
			want:       map[string]string{"zip": "02139", "email": "a@b.co"},
			wantAlt:    map[string]string{},
			wantPseudo: map[string]string{},
		},
		{
			name: "pseudo full name from components",
			in: MergeInput{
				Session:    FromValues(map[string]string{"first_name": "Jane"}),
				Request:    FromValues(map[string]string{"last_name": "Doe"}),
				AskedType:  contact.TypeLastName,
				Heuristics: true,
			},
			want:       map[string]string{"first_name": "Jane", "last_name": "Doe", "full_name": "Jane Doe"},
			wantAlt:    map[string]string{},
			wantPseudo: map[string]string{"full_name": "Jane Doe"},
		},
		{
			name: "alternative correction is durable and feeds pseudo",
			in: MergeInput{
				Session:    FromValues(map[string]string{"first_name": "Michael", "full_name": "Michael"}),
				Request:    FromValues(map[string]string{"first_name": "Myers"}),
				AskedType:  contact.TypeLastName,
				Heuristics: true,
			},
			want: map[string]string{
				"first_name": "Michael",
				"last_name":  "Myers",
				"full_name":  "Michael Myers",
			},
			wantAlt:    map[string]string{"first_name": "Michael", "last_name": "Myers"},
			wantPseudo: map[string]string{"full_name": "Michael Myers"},
		},
		{
			name: "alternative clears misfiled last name",
			in: MergeInput{
				Request:    FromValues(map[string]string{"last_name": "Michael"}),
				AskedType:  contact.TypeFirstName,
				Heuristics: true,
			},
			want:       map[string]string{"first_name": "Michael", "full_name": "Michael"},
			wantAlt:    map[string]string{"first_name": "Michael"},
			wantPseudo: map[string]string{"full_name": "Michael"},
		},
		{
			name: "heuristics off skips alternatives",
			in: MergeInput{
				Request:   FromValues(map[string]string{"last_name": "Michael"}),
				AskedType: contact.TypeFirstName,
			},
			want:       map[string]string{"last_name": "Michael", "full_name": "Michael"},
			wantAlt:    map[string]string{},
			wantPseudo: map[string]string{"full_name": "Michael"},
		},
		{
			name: "form is authoritative",
			in: MergeInput{
				Session: FromValues(map[string]string{"phone": "5550000000"}),
				Form:    FromValues(map[string]string{"phone": "5551112222", "full_name": "Ann Lee"}),
			},
			want:       map[string]string{"phone": "5551112222", "full_name": "Ann Lee"},
			wantAlt:    map[string]string{},
			wantPseudo: map[string]string{},
		},
		{
			name: "native slot suppresses pseudo",
			in: MergeInput{
				Request: FromValues(map[string]string{"first_name": "Jane", "full_name": "Jane Q. Public"}),
			},
			want:       map[string]string{"first_name": "Jane", "full_name": "Jane Q. Public"},
			wantAlt:    map[string]string{},
			wantPseudo: map[string]string{},
		},
		{
			name: "fallback single word",
			in: MergeInput{
				Utterance:   "michael",
				RequestKind: contact.KindFallback,
				AskedType:   contact.TypeFirstName,
				Heuristics:  true,
			},
			want:       map[string]string{"first_name": "Michael", "full_name": "Michael"},
			wantAlt:    map[string]string{"first_name": "Michael"},
			wantPseudo: map[string]string{"full_name": "Michael"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.in)
			if v := got.Slots.Values(); !reflect.DeepEqual(v, tt.want) {
				t.Errorf("Slots = %v, want %v", v, tt.want)
			}
			if v := got.Alternatives.Values(); !reflect.DeepEqual(v, tt.wantAlt) {
				t.Errorf("Alternatives = %v, want %v", v, tt.wantAlt)
			}
			if v := got.Pseudo.Values(); !reflect.DeepEqual(v, tt.wantPseudo) {
				t.Errorf("Pseudo = %v, want %v", v, tt.wantPseudo)
			}
		})
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	session := FromValues(map[string]string{"first_name": "Michael"})
	request := FromValues(map[string]string{"first_name": "Myers"})

	Merge(MergeInput{
		Session:    session,
		Request:    request,
		AskedType:  contact.TypeLastName,
		Heuristics: true,
	})

	if len(session) != 1 || session.Get("first_name") != "Michael" {
		t.Errorf("session mutated: %v", session)
	}
	if len(request) != 1 || request.Get("first_name") != "Myers" {
		t.Errorf("request mutated: %v", request)
	}
}
