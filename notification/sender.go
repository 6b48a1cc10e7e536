// Package notification supplies email content for the three triggers
// (verification code, welcome, vote confirmation) and the sender
// contract used to deliver them. Delivery mechanics live behind the
// Sender interface; the core only produces content.
package notification

import (
	"context"
	"fmt"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message. A returned error means delivery is
// uncertain; it never invalidates the operation that triggered it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// VerificationCode renders the OTP delivery message.
func VerificationCode(to, fullName, code string) Message {
	return Message{
		To:      to,
		Subject: "Your verification code",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour verification code is %s.\n\nEnter it to continue your registration.",
			fullName, code),
	}
}

// Welcome renders the post-registration message.
func Welcome(to, fullName string) Message {
	return Message{
		To:      to,
		Subject: "Welcome to UNIvote",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour account is verified and your wallet is bound. You can now take part in elections.",
			fullName),
	}
}

// VoteConfirmation renders the post-cast receipt message.
func VoteConfirmation(to, fullName, electionTitle, voteHash string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Vote received: %s", electionTitle),
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour vote in %q has been recorded.\nReceipt hash: %s\n\nKeep this hash if you want to reconcile your vote during an audit.",
			fullName, electionTitle, voteHash),
	}
}
