package content

import "github.com/hpungsan/leadcap/internal/contact"

var defaultQuestions = map[contact.DataType]Item{
	contact.TypeFirstName:     {Speech: "What is your first name?", Reprompt: "Sorry, what was your first name?"},
	contact.TypeLastName:      {Speech: "And your last name?", Reprompt: "Sorry, what was your last name?"},
	contact.TypeFullName:      {Speech: "What is your name?", Reprompt: "Sorry, could you tell me your full name?"},
	contact.TypePhone:         {Speech: "What is the best phone number to reach you?", Reprompt: "Could you repeat your phone number, digits only?"},
	contact.TypeZip:           {Speech: "What is your ZIP code?", Reprompt: "Sorry, what was your five digit ZIP code?"},
	contact.TypeAddress:       {Speech: "What is your street address?", Reprompt: "Could you repeat your street address?"},
	contact.TypeCity:          {Speech: "What city are you in?", Reprompt: "Sorry, which city?"},
	contact.TypeState:         {Speech: "What state are you in?", Reprompt: "Sorry, which state?"},
	contact.TypeEmail:         {Speech: "What is your email address?", Reprompt: "Could you spell out your email address?"},
	contact.TypeSelection:     {Speech: "Which option would you like?", Reprompt: "Sorry, which option was that?"},
	contact.TypeOrganization:  {Speech: "What company are you with?", Reprompt: "Sorry, what was the company name?"},
	contact.TypeMessage:       {Speech: "How can we help you?", Reprompt: "Could you briefly describe what you need?"},
	contact.TypeDateTime:      {Speech: "What day and time works best for you?", Reprompt: "Sorry, what day and time was that?"},
	contact.TypePreferredTime: {Speech: "Is there a time of day you prefer?", Reprompt: "Morning, afternoon or evening?"},
}

var defaultTable = Table{
	TagStart:       {Speech: "I can take down your information so someone from ${BUSINESS_NAME} can get back to you."},
	TagStartHelp:   {Speech: "I can help with that. I just need a few details first."},
	TagNoCapture:   {Speech: "I'm not able to take your contact information here. Please reach out to ${BUSINESS_NAME} directly."},
	TagComplete:    {Speech: "Thank you! I've passed your information along to ${BUSINESS_NAME}. Someone will be in touch soon."},
	TagRefused:     {Speech: "No problem. If you change your mind, just let me know."},
	TagAlreadySent: {Speech: "Thanks, I've added that to your request."},
	TagConfigError: {Speech: ConfigErrorText},
}

func init() {
	for t, it := range defaultQuestions {
		defaultTable[QuestionTag(t)] = it
	}
}

// Defaults returns the built-in content table. Every data type has a
// question.
func Defaults() Table {
	t := make(Table, len(defaultTable))
	for k, v := range defaultTable {
		t[k] = v
	}
	return t
}
