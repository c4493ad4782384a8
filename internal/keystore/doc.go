// Package keystore encrypts the ledger account key at rest.
//
// The encrypted key lives in the config file as a base64 envelope and is
// decrypted at startup with a password read from the terminal. A wrong
// password fails authentication and the process exits rather than running
// with no signing credential.
package keystore
