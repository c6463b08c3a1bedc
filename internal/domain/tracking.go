package domain

import "time"

// PatientOwner is the terminal recipient recorded when a unit is dispensed.
// Patients are outside the traced entity set and never appear on the
// external ledger.
const PatientOwner = "patient"

// CustodyEvent is one append-only entry in the local chain-of-custody
// history. FromOwner is empty for the genesis event at batch creation.
// LedgerTxRef stays empty until the external ledger confirmed the matching
// transaction, which is what reconciliation keys off.
type CustodyEvent struct {
	ID           string
	Serial       string
	FromOwner    string
	ToOwner      string
	Location     string
	MedicineName string
	LedgerTxRef  string
	Timestamp    time.Time
}
