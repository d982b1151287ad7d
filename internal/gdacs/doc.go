// Package gdacs talks to the Global Disaster Alert and Coordination System
// polygon API and turns an event's GeoJSON geometry into wind-speed buffer
// bands.
package gdacs
