// Package blackboard provides the key/value store behavior trees read and
// write, plus the Redis schema used to mirror it for inspection tools.
//
// # Overview
//
// An Asset declares an ordered list of named, typed keys and may inherit the
// keys of a parent asset. Finalize assigns each key a KeyID; ids of inherited
// keys come first, so a tree built against a parent asset can run on a
// blackboard created from any of its children.
//
// An Instance holds the values for one agent. Plain values (bool, enum, int,
// float, name, vector, rotator) live in one flat byte buffer whose layout is
// fixed by the asset. Object, Class and String values live in per-key
// reference slots.
//
// # Observers
//
// Nodes register observers on keys to react to value changes. A write that
// does not change the stored bytes notifies nobody. PauseUpdates defers
// notifications; ResumeUpdates delivers one notification per changed key in
// key-id order.
//
// # Usage Example
//
//	asset := blackboard.NewAsset("Guard", nil).
//		AddKey("Enemy", blackboard.KeyType{Kind: blackboard.KindObject}).
//		AddKey("Alert", blackboard.KeyType{Kind: blackboard.KindBool})
//	if err := asset.Finalize(); err != nil {
//		log.Fatal(err)
//	}
//
//	bb, _ := blackboard.NewInstance(asset)
//	bb.RegisterObserver(bb.KeyID("Alert"), nil, func(b *blackboard.Instance, key blackboard.KeyID) blackboard.NotifyResult {
//		log.Printf("alert changed")
//		return blackboard.ContinueObserving
//	})
//	_ = bb.SetValueAsBoolByName("Alert", true)
//
// # Redis Schema
//
// All Redis keys follow the pattern: grove:{agent}:{entity}
//
// Values hash: grove:{agent}:blackboard (key name -> canonical text)
// Snapshot: grove:{agent}:snapshot (JSON debug snapshot)
//
// Pub/Sub channels:
//
// Change events: grove:{agent}:blackboard_events
// Execution events: grove:{agent}:execution_events
// Messages: grove:{agent}:messages
//
// A Mirror keeps the values hash current and publishes change events; the
// CLI reads both to show a live blackboard.
package blackboard
