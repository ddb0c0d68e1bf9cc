package google

import gmail "google.golang.org/api/gmail/v1"

// Scopes are the OAuth scopes requested for every linked account: read the
// inbox and send from the main account.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
}
