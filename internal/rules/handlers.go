package rules

import (
	"github.com/roach88/narrator/internal/domain"
)

func activityLogged(r *renderer, ev domain.Event, p *domain.ActivityLogged) []domain.DispatchOutput {
	activityID := firstNonEmpty(p.ActivityID, ev.Key)
	key := domain.NormalizeKey("activity", activityID)
	name := r.lc.Name(p.PlayerID)
	kind := firstNonEmpty(p.ActivityType, defaultActivityTypeName)

	detail := ""
	if p.DurationMinutes > 0 {
		detail += r.sprintf(" for %d min", p.DurationMinutes)
	}
	if p.DistanceKm > 0 {
		detail += r.sprintf(" (%.1f km)", p.DistanceKm)
	}

	tag := domain.CommentPayload{ActivityID: activityID, ActorPlayerID: p.PlayerID}

	var outs []domain.DispatchOutput
	if p.DurationMinutes >= marathonMinutes {
		c := tag
		c.Body = r.sprintf("%s just put in a %d-minute %s. Marathon energy.", name, p.DurationMinutes, kind)
		outs = append(outs, r.comment("workout_marathon", domain.ChannelFeed, domain.VisibilityFeed,
			scoreWorkoutMarathon, domain.BudgetFeedPerWorkout, key, c))
	}

	c := tag
	c.Body = r.sprintf("%s logged a %s%s.", name, kind, detail)
	outs = append(outs, r.comment("workout_highlight", domain.ChannelFeed, domain.VisibilityFeed,
		scoreWorkoutHighlight, domain.BudgetFeedPerWorkout, key, c))

	outs = append(outs, r.pushToLobby("workout_push", scoreWorkoutPush, key, r.lc.UserID(p.PlayerID),
		r.sprintf("%s just logged a %s. Your move.", name, kind)))
	return outs
}

func voteResolved(r *renderer, ev domain.Event, p *domain.VoteResolved) []domain.DispatchOutput {
	key := domain.NormalizeKey("vote", firstNonEmpty(p.ActivityID, ev.Key))
	name := r.lc.Name(p.PlayerID)

	var feed, push string
	if p.Approved {
		feed = r.sprintf("The lobby approved %s's workout (%d to %d).", name, p.VotesFor, p.VotesAgainst)
		push = "Your workout was approved."
	} else {
		feed = r.sprintf("The lobby rejected %s's workout (%d to %d). No credit.", name, p.VotesFor, p.VotesAgainst)
		push = "Your workout was rejected by the lobby."
	}

	return []domain.DispatchOutput{
		r.comment("vote_verdict", domain.ChannelFeed, domain.VisibilityBoth,
			scoreVoteVerdict, domain.BudgetFeedPerLobbyPerMinute, key,
			domain.CommentPayload{Body: feed, ActivityID: p.ActivityID, ActorPlayerID: p.PlayerID}),
		r.pushToUser("vote_verdict_push", scoreVoteVerdictPush, domain.BudgetNone, key, r.lc.UserID(p.PlayerID), push),
	}
}

func potChanged(r *renderer, ev domain.Event, p *domain.PotChanged) []domain.DispatchOutput {
	key := domain.NormalizeKey("pot", ev.Key)

	body := r.sprintf("The pot went from %d to %d", p.PreviousPot, p.NewPot)
	if p.Reason != "" {
		body += " (" + p.Reason + ")"
	}
	body += "."

	outs := []domain.DispatchOutput{
		r.comment("pot_ledger", domain.ChannelHistory, domain.VisibilityHistory,
			scorePotLedger, domain.BudgetNone, key,
			domain.CommentPayload{Body: body, ActorPlayerID: p.PlayerID}),
	}
	if p.NewPot > p.PreviousPot {
		outs = append(outs, r.comment("pot_hype", domain.ChannelFeed, domain.VisibilityFeed,
			scorePotHype, domain.BudgetFeedPerLobbyPerMinute, key,
			domain.CommentPayload{
				Body:          r.sprintf("The pot just grew by %d. It now stands at %d.", p.NewPot-p.PreviousPot, p.NewPot),
				ActorPlayerID: p.PlayerID,
			}))
	}
	return outs
}

func spinResolved(r *renderer, ev domain.Event, p *domain.SpinResolved) []domain.DispatchOutput {
	key := domain.NormalizeKey("spin", firstNonEmpty(p.SpinID, ev.Key))
	outcome := firstNonEmpty(p.Outcome, "a mystery challenge")

	return []domain.DispatchOutput{
		r.comment("spin_result", domain.ChannelFeed, domain.VisibilityBoth,
			scoreSpinResult, domain.BudgetFeedPerLobbyPerMinute, key,
			domain.CommentPayload{
				Body:          r.sprintf("The wheel has spoken: %s must do %s.", r.lc.Name(p.PlayerID), outcome),
				ActorPlayerID: p.PlayerID,
			}),
		r.pushToUser("spin_push", scoreSpinPush, domain.BudgetNone, key, r.lc.UserID(p.PlayerID),
			r.sprintf("The wheel picked %s for you.", outcome)),
	}
}

func readyStateChanged(r *renderer, ev domain.Event, p *domain.ReadyStateChanged) []domain.DispatchOutput {
	if p.AllReady {
		key := domain.NormalizeKey("ready", ev.Key)
		return []domain.DispatchOutput{
			r.comment("lobby_ready", domain.ChannelFeed, domain.VisibilityBoth,
				scoreLobbyReady, domain.BudgetNone, key,
				domain.CommentPayload{Body: r.sprintf("Everyone in %s is ready. Let the season begin.", r.lc.LobbyName())}),
			r.pushToLobby("lobby_ready_push", scoreLobbyReadyPush, key, "", "Everyone is ready. Game on."),
		}
	}

	body := r.sprintf("%s is ready.", r.lc.Name(p.PlayerID))
	if !p.Ready {
		body = r.sprintf("%s is no longer ready.", r.lc.Name(p.PlayerID))
	}
	return []domain.DispatchOutput{
		r.comment("player_ready", domain.ChannelFeed, domain.VisibilityFeed,
			scorePlayerReady, domain.BudgetFeedPerLobbyPerMinute, domain.NormalizeKey("ready", p.PlayerID, ev.Key),
			domain.CommentPayload{Body: body, ActorPlayerID: p.PlayerID}),
	}
}

func punishmentResolved(r *renderer, ev domain.Event, p *domain.PunishmentResolved) []domain.DispatchOutput {
	name := r.lc.Name(p.PlayerID)

	var body string
	switch {
	case p.Completed && p.Description != "":
		body = r.sprintf("%s completed their punishment: %s.", name, p.Description)
	case p.Completed:
		body = r.sprintf("%s completed their punishment.", name)
	case p.Description != "":
		body = r.sprintf("%s bailed on their punishment: %s.", name, p.Description)
	default:
		body = r.sprintf("%s bailed on their punishment.", name)
	}

	return []domain.DispatchOutput{
		r.comment("punishment_result", domain.ChannelFeed, domain.VisibilityBoth,
			scorePunishmentResult, domain.BudgetFeedPerLobbyPerMinute,
			domain.NormalizeKey("punishment", firstNonEmpty(p.PunishmentID, ev.Key)),
			domain.CommentPayload{Body: body, ActorPlayerID: p.PlayerID}),
	}
}

func playerEliminated(r *renderer, ev domain.Event, p *domain.PlayerEliminated) []domain.DispatchOutput {
	key := domain.NormalizeKey("eliminated", firstNonEmpty(p.PlayerID, ev.Key))
	name := r.lc.Name(p.PlayerID)

	body := name + " has been eliminated"
	if p.Reason != "" {
		body += " (" + p.Reason + ")"
	}
	body += "."

	return []domain.DispatchOutput{
		r.comment("elimination", domain.ChannelFeed, domain.VisibilityBoth,
			scoreElimination, domain.BudgetNone, key,
			domain.CommentPayload{Body: body, ActorPlayerID: p.PlayerID}),
		r.pushToLobby("elimination_push", scoreEliminationPush, key, r.lc.UserID(p.PlayerID),
			r.sprintf("%s is out. Stay sharp.", name)),
	}
}

func dailyReminderDue(r *renderer, ev domain.Event, p *domain.DailyReminderDue) []domain.DispatchOutput {
	userID := r.lc.UserID(p.PlayerID)
	if userID == "" {
		return nil
	}

	body := "Don't break the streak. Log a workout today."
	if p.WorkoutsRemaining > 0 {
		body = r.sprintf("You still have %s to log this week. Today counts.",
			r.plural(p.WorkoutsRemaining, "workout", "workouts"))
	}

	out := r.pushToUser("daily_reminder", scoreDailyReminder, domain.BudgetDailyPushPerUserPerDay,
		domain.NormalizeKey("reminder", p.PlayerID, p.DayKey), userID, body)
	out.DayKey = p.DayKey
	return []domain.DispatchOutput{out}
}

func weeklyGroup(r *renderer, ev domain.Event, p *domain.WeeklyGroup) []domain.DispatchOutput {
	week := firstNonEmpty(p.WeekKey, ev.Key)
	names := r.names(p.PlayerIDs)

	target := ""
	if p.Target > 0 {
		target = " of " + r.plural(p.Target, "workout", "workouts")
	}

	var ruleID, suffix, body string
	score := scoreWeeklyGroup
	switch ev.Type {
	case domain.EventWeeklyTargetHit:
		ruleID, suffix = "weekly_target_hit", "hit"
		body = r.sprintf("Week %s: %s hit the target%s.", week, names, target)
	case domain.EventWeeklyTargetMissed:
		ruleID, suffix = "weekly_target_missed", "missed"
		body = r.sprintf("Week %s: %s missed the target%s.", week, names, target)
	case domain.EventWeeklyGhosted:
		ruleID, suffix, score = "weekly_ghosted", "ghosted", scoreWeeklyGhosted
		body = r.sprintf("Week %s: %s ghosted the lobby. Zero workouts.", week, names)
	case domain.EventWeeklyPerfectWeek:
		ruleID, suffix, score = "weekly_perfect", "perfect", scoreWeeklyPerfect
		body = r.sprintf("Week %s was perfect. %s hit every target.", week, names)
	default:
		return nil
	}

	key := domain.NormalizeKey("week", week, suffix)
	outs := []domain.DispatchOutput{
		r.comment(ruleID, domain.ChannelFeed, domain.VisibilityBoth, score, domain.BudgetNone, key,
			domain.CommentPayload{Body: body}),
	}
	if ev.Type == domain.EventWeeklyPerfectWeek {
		outs = append(outs, r.pushToLobby("weekly_perfect_push", scoreWeeklyPerfectPush, key, "",
			r.sprintf("Perfect week in %s. Everyone hit the target.", r.lc.LobbyName())))
	}
	return outs
}

func weeklyTightRace(r *renderer, ev domain.Event, p *domain.WeeklyTightRace) []domain.DispatchOutput {
	week := firstNonEmpty(p.WeekKey, ev.Key)
	body := r.sprintf("Week %s came down to the wire: %s edged out %s by %s.",
		week, r.lc.Name(p.LeaderID), r.lc.Name(p.RunnerUpID), r.plural(p.Gap, "workout", "workouts"))

	return []domain.DispatchOutput{
		r.comment("weekly_tight_race", domain.ChannelFeed, domain.VisibilityBoth,
			scoreWeeklyGroup, domain.BudgetNone, domain.NormalizeKey("week", week, "race"),
			domain.CommentPayload{Body: body, ActorPlayerID: p.LeaderID}),
	}
}

func weeklyTopPerformer(r *renderer, ev domain.Event, p *domain.WeeklyTopPerformer) []domain.DispatchOutput {
	week := firstNonEmpty(p.WeekKey, ev.Key)
	body := r.sprintf("Week %s belongs to %s with %s.",
		week, r.lc.Name(p.PlayerID), r.plural(p.Workouts, "workout", "workouts"))

	return []domain.DispatchOutput{
		r.comment("weekly_top_performer", domain.ChannelFeed, domain.VisibilityBoth,
			scoreWeeklyGroup, domain.BudgetNone, domain.NormalizeKey("week", week, "top"),
			domain.CommentPayload{Body: body, ActorPlayerID: p.PlayerID}),
	}
}
