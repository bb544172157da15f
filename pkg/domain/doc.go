/*
Package domain contains the core domain models of the wren session engine.

It defines the records shared by every component (sessions, memberships, the
append-only scene log, the scene state and the entities living in a scene) and
the events delivered by the change feed. This package is kept pure and free of
external dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Session: An isolated collaborative narrative instance.
  - Membership: The role and character a participant holds in a session.
  - LogEntry: One immutable, sequenced record of the scene log.
  - SceneState: The single mutable "current situation" of a session.
  - Entity: A soft-deletable actor (npc, spirit, drone...) present in a scene.
  - FeedEvent: A change delivered to observers polling with a Cursor.
*/
package domain
