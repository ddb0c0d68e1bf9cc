// Package gmail is a stateless client for the Gmail REST API.
//
// The client never stores credentials: every call takes the bearer token of
// the account it acts for, so one Client serves any number of linked
// accounts. It offers:
//   - GetProfile for the mailbox owner
//   - ListMessageIDs for the inbox (q=in:inbox)
//   - GetMessageDetail, normalizing subject, sender, date, snippet and unread state
//   - SendMessage, building an RFC 2822 plain-text message
//
// EncodeRawMessage and DecodeRawMessage convert between an OutgoingMessage and
// the unpadded base64url "raw" form the send endpoint accepts.
//
// Example usage:
//
//	client := gmail.NewClient(gmail.WithRateLimit(5))
//	ids, err := client.ListMessageIDs(ctx, token, 50)
//	if err != nil {
//	    return err
//	}
//	for _, id := range ids {
//	    msg, err := client.GetMessageDetail(ctx, token, id)
//	    ...
//	}
package gmail
