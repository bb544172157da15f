/*
Package wren is a collaborative scene-session engine for tabletop role-playing
games played through a terminal or an AI agent.

A game-master opens a session, players join it with a role and a character
name, and everyone drives the shared narrative by sending lines of text.
Lines starting with "/" are commands; anything else is forwarded to the AI
completion bridge and its reply is narrated into the scene log.

# Concept

Each session owns an append-only scene log with gap-free sequence numbers, a
single scene state record (location, goal, opposition, magical conditions)
and a set of entities. Observers follow a session through a change feed:
they keep their own cursor and receive only what is newer than it.

# Commands

	/scene [text]            set or show the scene (game-master only)
	/roll [NdM|N] [comment]  roll a success-counting dice pool
	/summon ...              bring an NPC, spirit, drone or threat into the scene
	/echo text               speak in character
	/dismiss <id|name>       retire an entity

# Usage

	eng, err := wren.New()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	sess, _ := eng.CreateSession(ctx, registry.CreateRequest{CreatorID: "gm"})
	eng.Join(ctx, registry.JoinRequest{SessionID: sess.ID, ParticipantID: "p1"})

	res, err := eng.Execute(ctx, sess.ID, "p1", "/roll 5d6 climb the fence")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Message)

# Architecture

The engine follows a hexagonal layout: pkg/domain holds the types and error
sentinels, pkg/ports the interfaces, and pkg/adapters the implementations
(memory, SQLite, Redis, HTTP, MCP, OpenAI). Writes to one session are
serialized by pkg/session; writes to different sessions never share a lock.
*/
package wren
