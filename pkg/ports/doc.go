/*
Package ports defines the driven ports (interfaces) of the wren engine.

These interfaces decouple the session core from external implementations,
allowing the engine to run against SQLite, Redis or purely in-memory backends.

# Key Interfaces

  - Store: Sessions, memberships, the scene log, scene state and entities.
  - ConversationStore: Per-participant history for the completion bridge.
  - Completer: The AI completion bridge.
  - Notifier: Wake-up signal for change-feed loops.
  - DistributedLocker: Cross-replica serialization of session writes.

Adapters verify themselves with RunStoreContract and RunConversationStoreContract.
*/
package ports
