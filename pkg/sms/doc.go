// Package sms sends text messages through interchangeable providers and
// normalizes phone numbers to E.164.
package sms
