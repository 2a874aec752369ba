package com

import "github.com/rs/xid"

// Uid is a process-unique transport address,
// stable for the lifetime of one connection.
type Uid struct {
	xid.ID
}

var NilUid = Uid{xid.NilID()}

func NewUid() Uid { return Uid{xid.New()} }

func UidFrom(s string) Uid {
	id, err := xid.FromString(s)
	if err != nil {
		return NilUid
	}
	return Uid{id}
}

func (u Uid) IsEmpty() bool { return u.IsNil() }
func (u Uid) Short() string { s := u.String(); return s[:3] + "." + s[len(s)-3:] }
