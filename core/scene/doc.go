// Package scene implements a stage controller for multi-step bot dialogues.
//
// A Stage owns a frozen Registry of scenes and routes every update of a
// session through the session's active scene before falling back to global
// handlers. Simple scenes hold an ordered set of routes; wizards additionally
// hold ordered steps advanced with Context.Next.
//
// The stage keeps no session state between dispatches. State lives in the
// injected Store, replies go out through the injected Sender.
package scene
