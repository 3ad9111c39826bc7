// Package mailbox wraps go-imap v2 sessions against the mailboxes this
// service scans. One session is held per configured credential for the
// duration of a sync pass; sessions are never shared across credentials.
package mailbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/welldanyogia/mail-attachment-sync/internal/config"
)

// ConnectionError reports a failed mailbox bootstrap. Any connection
// failure at startup is fatal for the whole run.
type ConnectionError struct {
	Address string
	Err     error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect mailbox %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Session is one live IMAP session with INBOX selected.
type Session struct {
	client  *imapclient.Client
	address string
}

// Connect dials the IMAP server over TLS, authenticates, and selects
// INBOX. The caller owns the returned session and must Close it.
func Connect(cred config.MailboxCredential) (*Session, error) {
	addr := cred.IMAPServer + ":" + strconv.Itoa(cred.IMAPPort)

	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, &ConnectionError{Address: cred.Email, Err: err}
	}

	if err := client.Login(cred.Email, cred.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &ConnectionError{Address: cred.Email, Err: fmt.Errorf("login: %w", err)}
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &ConnectionError{Address: cred.Email, Err: fmt.Errorf("selecting INBOX: %w", err)}
	}

	return &Session{client: client, address: cred.Email}, nil
}

// Address returns the mailbox address this session is bound to.
func (s *Session) Address() string {
	return s.address
}

// SearchFrom returns the identifiers of messages whose From header
// matches sender, in the order the server returns them.
func (s *Session) SearchFrom(_ context.Context, sender string) ([]string, error) {
	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: sender},
		},
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages from %s: %w", sender, err)
	}

	uids := data.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// Fetch retrieves the full raw message body for the given identifier
// without marking the message as seen.
func (s *Session) Fetch(_ context.Context, id string) ([]byte, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message %s not found", id)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %s: %w", id, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message %s has no body section", id)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}

	return raw, nil
}

// Close logs the session out.
func (s *Session) Close() error {
	return s.client.Logout().Wait()
}
