package forwarder

import (
	"github.com/google/uuid"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"

	"github.com/badgerdao/harvest-forwarder/journal"
)

const journalSystem = "forwarder"

type fwdEvtTypes struct {
	treeChanged  journal.EventType
	ownerChanged journal.EventType
	distributed  journal.EventType
	swept        journal.EventType
}

func registerEvtTypes(j journal.Journal) fwdEvtTypes {
	return fwdEvtTypes{
		treeChanged:  j.RegisterEventType(journalSystem, "tree_changed"),
		ownerChanged: j.RegisterEventType(journalSystem, "owner_changed"),
		distributed:  j.RegisterEventType(journalSystem, "funds_distributed"),
		swept:        j.RegisterEventType(journalSystem, "funds_swept"),
	}
}

// TreeChangedEvt is the journal entry recorded by SetTree.
type TreeChangedEvt struct {
	Old address.Address
	New address.Address
}

// OwnerChangedEvt is the journal entry recorded by TransferOwnership.
type OwnerChangedEvt struct {
	Old address.Address
	New address.Address
}

// FundsDistributedEvt is the journal entry recorded by a successful Distribute.
type FundsDistributedEvt struct {
	Receipt     uuid.UUID
	Token       address.Address
	Amount      abi.TokenAmount
	Beneficiary address.Address
	Tree        address.Address
}

// FundsSweptEvt is the journal entry recorded by a Sweep that moved funds.
// Amount is what the recipient was credited and Sent what left custody; they
// differ for tokens that charge a transfer fee.
type FundsSweptEvt struct {
	Token     address.Address
	Amount    abi.TokenAmount
	Sent      abi.TokenAmount
	Recipient address.Address
}
