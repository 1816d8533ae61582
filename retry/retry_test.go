/*
 * MailSeek - Copyright (C) 2026 the MailSeek authors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package retry

import (
	"errors"
	"io"
	"sync"
	"syscall"
	"testing"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"github.com/mailseek/mailseek/imap"
	"github.com/mailseek/mailseek/pool"
	"github.com/mailseek/mailseek/resolver"
)

type fakeClient struct {
	mu        sync.Mutex
	searchErr error
	searchIDs []uint32
	fetchErr  error
	fetchMsgs []*goimap.Message
	selected  string
	logouts   int

	loggedOut chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{loggedOut: make(chan struct{})}
}

func (c *fakeClient) Select(name string, readOnly bool) (*goimap.MailboxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = name
	return &goimap.MailboxStatus{Name: name, ReadOnly: readOnly}, nil
}

func (c *fakeClient) Search(criteria *goimap.SearchCriteria) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchIDs, c.searchErr
}

func (c *fakeClient) Fetch(seqset *goimap.SeqSet, items []goimap.FetchItem, ch chan *goimap.Message) error {
	c.mu.Lock()
	msgs, err := c.fetchMsgs, c.fetchErr
	c.mu.Unlock()

	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return err
}

func (c *fakeClient) Noop() error { return nil }

func (c *fakeClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logouts == 0 {
		close(c.loggedOut)
	}
	c.logouts++
	return nil
}

func (c *fakeClient) LoggedOut() <-chan struct{} { return c.loggedOut }

func (c *fakeClient) selectedFolder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// scriptedFactory hands out pre-built clients in order.
type scriptedFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	next    int
}

func (f *scriptedFactory) NewClient(cfg *imap.ClientConfig) (imap.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.clients) {
		return nil, errors.New("factory script exhausted")
	}
	c := f.clients[f.next]
	f.next++
	return c, nil
}

func (f *scriptedFactory) connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

func testCreds() resolver.CredentialSet {
	return resolver.CredentialSet{
		Server:  "imap.example.com",
		Account: "user",
		Secret:  "hunter2",
		Port:    993,
	}
}

func newTestRunner(factory *scriptedFactory) (*Runner, *pool.Pool) {
	p := pool.New(pool.Config{Factory: factory})
	r := NewRunner(p)
	r.Sleep = func(time.Duration) {}
	return r, p
}

func TestSearchReconnectsOnDeadConnection(t *testing.T) {
	dead := newFakeClient()
	dead.searchErr = errors.New("write tcp: broken pipe")
	good := newFakeClient()
	good.searchIDs = []uint32{1, 2, 3}

	factory := &scriptedFactory{clients: []*fakeClient{dead, good}}
	r, p := newTestRunner(factory)

	creds := testCreds()
	sess, err := p.Acquire(creds)
	assert.NoError(t, err)

	ids, live, err := r.Search(sess, &creds, "INBOX", &goimap.SearchCriteria{}, "t1")
	assert.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, ids)
	assert.NotSame(t, sess, live)
	assert.Equal(t, 2, factory.connects())

	// The dead client was logged out and the replacement had the
	// folder re-selected before the retry.
	assert.Equal(t, 1, dead.logouts)
	assert.Equal(t, "INBOX", good.selectedFolder())
}

func TestSearchGivesUpAfterMaxRetries(t *testing.T) {
	clients := []*fakeClient{}
	for i := 0; i < 3; i++ {
		c := newFakeClient()
		c.searchErr = io.EOF
		clients = append(clients, c)
	}

	factory := &scriptedFactory{clients: clients}
	r, p := newTestRunner(factory)

	creds := testCreds()
	sess, err := p.Acquire(creds)
	assert.NoError(t, err)

	_, live, err := r.Search(sess, &creds, "INBOX", &goimap.SearchCriteria{}, "t2")
	assert.Error(t, err)
	assert.Nil(t, live)

	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, creds.Key(), exhausted.Key)
	assert.Equal(t, 3, factory.connects())
}

func TestSearchFailsFastOnNonRecoverableError(t *testing.T) {
	c := newFakeClient()
	c.searchErr = errors.New("NO [CANNOT] unsupported search criterion")

	factory := &scriptedFactory{clients: []*fakeClient{c}}
	r, p := newTestRunner(factory)

	creds := testCreds()
	sess, err := p.Acquire(creds)
	assert.NoError(t, err)

	_, live, err := r.Search(sess, &creds, "INBOX", &goimap.SearchCriteria{}, "t3")
	assert.Error(t, err)
	assert.Nil(t, live)
	assert.Contains(t, err.Error(), "after 1 attempt")

	// No reconnect, and the session stays pooled.
	assert.Equal(t, 1, factory.connects())
	assert.Equal(t, 1, p.Size())
}

func TestSearchFailsFastWithoutCredentials(t *testing.T) {
	c := newFakeClient()
	c.searchErr = syscall.ECONNRESET

	factory := &scriptedFactory{clients: []*fakeClient{c}}
	r, p := newTestRunner(factory)

	creds := testCreds()
	sess, err := p.Acquire(creds)
	assert.NoError(t, err)

	_, live, err := r.Search(sess, nil, "INBOX", &goimap.SearchCriteria{}, "t4")
	assert.Nil(t, live)
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, 1, factory.connects())
}

func TestSearchBacksOffLinearly(t *testing.T) {
	clients := []*fakeClient{}
	for i := 0; i < 3; i++ {
		c := newFakeClient()
		c.searchErr = io.ErrUnexpectedEOF
		clients = append(clients, c)
	}

	factory := &scriptedFactory{clients: clients}
	p := pool.New(pool.Config{Factory: factory})

	var slept []time.Duration
	r := NewRunner(p)
	r.Sleep = func(d time.Duration) { slept = append(slept, d) }

	creds := testCreds()
	sess, err := p.Acquire(creds)
	assert.NoError(t, err)

	_, _, err = r.Search(sess, &creds, "INBOX", &goimap.SearchCriteria{}, "t5")
	assert.Error(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, slept)
}

func TestFetchCollectsMessages(t *testing.T) {
	c := newFakeClient()
	c.fetchMsgs = []*goimap.Message{
		{SeqNum: 1},
		{SeqNum: 2},
	}

	factory := &scriptedFactory{clients: []*fakeClient{c}}
	r, p := newTestRunner(factory)

	creds := testCreds()
	sess, err := p.Acquire(creds)
	assert.NoError(t, err)

	seqset := new(goimap.SeqSet)
	seqset.AddNum(1, 2)

	msgs, live, err := r.Fetch(sess, &creds, "INBOX", seqset, []goimap.FetchItem{goimap.FetchEnvelope}, "t6")
	assert.NoError(t, err)
	assert.Same(t, sess, live)
	assert.Len(t, msgs, 2)
}

func TestFetchReconnectsOnDeadConnection(t *testing.T) {
	dead := newFakeClient()
	dead.fetchErr = errors.New("connection reset by peer")
	good := newFakeClient()
	good.fetchMsgs = []*goimap.Message{{SeqNum: 7}}

	factory := &scriptedFactory{clients: []*fakeClient{dead, good}}
	r, p := newTestRunner(factory)

	creds := testCreds()
	sess, err := p.Acquire(creds)
	assert.NoError(t, err)

	seqset := new(goimap.SeqSet)
	seqset.AddNum(7)

	msgs, live, err := r.Fetch(sess, &creds, "INBOX", seqset, []goimap.FetchItem{goimap.FetchRFC822}, "t7")
	assert.NoError(t, err)
	assert.NotSame(t, sess, live)
	assert.Len(t, msgs, 1)
	assert.Equal(t, uint32(7), msgs[0].SeqNum)
	assert.Equal(t, "INBOX", good.selectedFolder())
}
