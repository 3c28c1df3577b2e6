package mongostore

import (
	"regexp"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// The builders below are pure so their shape can be checked without a server.

func loginUpdate(u *model.User, now time.Time) bson.M {
	guilds := u.Guilds
	if guilds == nil {
		guilds = []model.GuildMembership{}
	}
	return bson.M{
		"$set": bson.M{
			"username":     u.Username,
			"avatar":       u.Avatar,
			"email":        u.Email,
			"accessToken":  u.AccessToken,
			"refreshToken": u.RefreshToken,
			"tokenExpiry":  u.TokenExpiry,
			"lastLogin":    u.LastLogin,
			"updatedAt":    now,
			"guilds":       guilds,
		},
		"$setOnInsert": bson.M{
			"createdAt":    now,
			"tokenVersion": int64(1),
			"banned":       false,
			"banReason":    "",
			"sessionHash":  "",
		},
	}
}

// ensureGuildUpdate refreshes name and icon and writes defaults only on insert.
func ensureGuildUpdate(g model.Guild, now time.Time) bson.M {
	admins, mods := g.Admins, g.Moderators
	if admins == nil {
		admins = []string{}
	}
	if mods == nil {
		mods = []string{}
	}
	return bson.M{
		"$set": bson.M{
			"guildName": g.GuildName,
			"guildIcon": g.GuildIcon,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"ownerId":     g.OwnerID,
			"ownerName":   g.OwnerName,
			"memberCount": g.MemberCount,
			"prefix":      g.Prefix,
			"description": g.Description,
			"settings":    g.Settings,
			"stats":       g.Stats,
			"admins":      admins,
			"moderators":  mods,
			"createdAt":   now,
		},
	}
}

func guildUpdate(upd store.GuildUpdate, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if upd.Prefix != nil {
		set["prefix"] = *upd.Prefix
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Settings != nil {
		set["settings"] = *upd.Settings
	}
	return bson.M{"$set": set}
}

func statsUpdate(d store.StatsDelta, at time.Time) bson.M {
	set := bson.M{"updatedAt": at}
	if d.Commands > 0 {
		set["stats.lastCommandAt"] = at
	}
	if d.Messages > 0 {
		set["stats.lastMessageAt"] = at
	}
	if d.MemberCount != nil {
		set["memberCount"] = *d.MemberCount
	}
	return bson.M{
		"$inc": bson.M{
			"stats.totalCommands": d.Commands,
			"stats.totalMessages": d.Messages,
			"stats.totalUsers":    d.Users,
		},
		"$set": set,
	}
}

func dailyUpdate(d store.StatsDelta) bson.M {
	return bson.M{"$inc": bson.M{
		"commands": d.Commands,
		"messages": d.Messages,
		"users":    d.Users,
	}}
}

func commandFilter(guildID string, f store.CommandFilter) bson.M {
	q := bson.M{"guildId": guildID}
	if f.Enabled != nil {
		q["enabled"] = *f.Enabled
	}
	if f.Search != "" {
		q["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
	}
	return q
}

func logFilter(f store.LogFilter) bson.M {
	q := bson.M{}
	if f.GuildID != "" {
		q["guildId"] = f.GuildID
	}
	if f.Type != "" {
		q["type"] = f.Type
	}
	if f.Severity != "" {
		q["severity"] = f.Severity
	}
	if f.UserID != "" {
		q["userId"] = f.UserID
	}
	if f.Since != nil || f.Until != nil {
		ts := bson.M{}
		if f.Since != nil {
			ts["$gte"] = *f.Since
		}
		if f.Until != nil {
			ts["$lte"] = *f.Until
		}
		q["timestamp"] = ts
	}
	return q
}

func groupPipeline(match bson.M, field string, limit int) mongo.Pipeline {
	p := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if limit > 0 {
		p = append(p, bson.D{{Key: "$limit", Value: limit}})
	}
	return p
}

func totalsPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"commands": bson.M{"$sum": "$stats.totalCommands"},
			"messages": bson.M{"$sum": "$stats.totalMessages"},
		}}},
	}
}

func revokeUpdate() bson.M {
	return bson.M{
		"$inc":   bson.M{"tokenVersion": 1},
		"$set":   bson.M{"sessionHash": ""},
		"$unset": bson.M{"sessionExpiresAt": ""},
	}
}
