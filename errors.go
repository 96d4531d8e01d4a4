/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
)

func logf(cfg *Config, format string, args ...any) {
	if cfg == nil || cfg.logger == nil {
		return
	}

	cfg.logger.Infof(format, args...)
}

func errorf(cfg *Config, format string, args ...any) {
	if cfg == nil || cfg.logger == nil {
		return
	}

	cfg.logger.Errorf(format, args...)
}

// errorMessages holds the text shown to a client for each validation failure.
var errorMessages = []struct {
	err  error
	text string
}{
	{errInvalidRoom, "Room code is invalid"},
	{errRoomNotFound, "Room does not exist"},
	{errRoomExists, "Room code already exists"},
	{errInvalidName, "Name is invalid"},
	{errNameTooLong, fmt.Sprintf("Name must be at most %d characters", maxNameLength)},
	{errNameTaken, "Player name already exists"},
	{errGameInProgress, "Game already in progress"},
	{errRoomFull, fmt.Sprintf("Room is full (at most %d players)", maxPlayers)},
	{errAlreadyJoined, "Already joined a room"},
	{errEmptyStory, "Story is empty"},
	{errStoryTooLong, fmt.Sprintf("Story must be at most %d characters", maxStoryLength)},
	{errCodeGeneration, "Could not create a room, please try again"},
	{errCodeExhausted, "Could not create a room, please try again"},
}

func errorText(err error) string {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.text
		}
	}
	return "Request failed"
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
